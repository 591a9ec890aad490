package dialer

import (
	"crypto/tls"
	"net"
	"time"
)

type Config struct {
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// TLSConfig is cloned for every TLS session started over a tunnel.
	// ServerName defaults to the target host.
	TLSConfig *tls.Config

	// Resolver looks up hostnames for SOCKS4 targets, which can only be
	// reached by IPv4 address. Nil means net.DefaultResolver.
	Resolver *net.Resolver
}
