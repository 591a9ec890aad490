package proxy

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/sockstunnel/internal/dialer"
)

type Config struct {
	NegotiationTimeout time.Duration
	HTTPIdleTimeout    time.Duration
	HTTPMaxIdleConns   int

	KeepAlive net.KeepAliveConfig

	Dialer dialer.Dialer

	// Logger receives per-connection errors. Nil disables logging.
	Logger *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
