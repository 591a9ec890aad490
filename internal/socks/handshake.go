package socks

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// Proxy is one of [SOCKS4] or [SOCKS5].
type Proxy interface {
	// ProxyAddr returns the proxy server's own host:port.
	ProxyAddr() string

	validate(target Addr) error
	negotiate(rw io.ReadWriter, target Addr) (Addr, error)
}

// Upgrader layers TLS (or any other protocol) over an established tunnel.
// serverName is the target host, suitable for SNI and certificate checks.
type Upgrader func(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error)

// Handshake negotiates a CONNECT tunnel through Proxy.
//
// A Handshake holds no state of its own; one value may be used for any number
// of concurrent connections.
type Handshake struct {
	Proxy Proxy

	// Upgrade, if set, is run by Connect over the tunnel before it is
	// returned.
	Upgrade Upgrader

	// ServerName overrides the name handed to Upgrade. It is needed when
	// target is an address resolved from a hostname, as for SOCKS4.
	ServerName string
}

// Connect is shorthand for a Handshake without an Upgrader.
func Connect(ctx context.Context, conn net.Conn, p Proxy, target Addr) (net.Conn, error) {
	return Handshake{Proxy: p}.Connect(ctx, conn, target)
}

// Connect negotiates a tunnel to target over conn, which must already be
// connected to the proxy, and returns the stream ready for payload. If
// h.Upgrade is set, the returned conn is the upgraded one.
//
// On failure conn must be treated as unusable. It is never closed here.
func (h Handshake) Connect(ctx context.Context, conn net.Conn, target Addr) (net.Conn, error) {
	if _, err := h.Negotiate(ctx, conn, target); err != nil {
		return nil, err
	}
	if h.Upgrade == nil {
		return conn, nil
	}

	serverName := h.ServerName
	if serverName == "" {
		serverName = target.Host()
	}
	upgraded, err := h.Upgrade(ctx, conn, serverName)
	if err != nil {
		return nil, transportError(StageTLS, err)
	}
	return upgraded, nil
}

// Negotiate runs the handshake over rw and returns the bound address the
// proxy reported. It reads exactly the bytes of the handshake and nothing
// more.
//
// Configuration errors are returned before anything is written. If rw has a
// SetDeadline method, cancelling ctx interrupts a blocked read or write.
func (h Handshake) Negotiate(ctx context.Context, rw io.ReadWriter, target Addr) (Addr, error) {
	if h.Proxy == nil {
		return Addr{}, configError("no proxy configured")
	}
	if err := h.Proxy.validate(target); err != nil {
		return Addr{}, err
	}
	if err := ctx.Err(); err != nil {
		return Addr{}, transportError("", err)
	}

	stop := func() bool { return true }
	if d, ok := rw.(deadliner); ok {
		stop = interruptOnDone(ctx, d)
	}

	bound, err := h.Proxy.negotiate(rw, target)
	if !stop() {
		// ctx fired while negotiating, so the exchange may have been cut
		// short even if it appeared to complete.
		var stage Stage
		var e *Error
		if errors.As(err, &e) {
			stage = e.Stage
		}
		return Addr{}, transportError(stage, context.Cause(ctx))
	}
	if err != nil {
		return Addr{}, err
	}
	return bound, nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// aLongTimeAgo is a non-zero time far in the past, used to unblock pending
// I/O immediately.
var aLongTimeAgo = time.Unix(1, 0)

// interruptOnDone expires d's deadline when ctx is done. The returned stop
// function reports false if that already happened; it then waits for the
// expiry to land and clears the deadline again.
func interruptOnDone(ctx context.Context, d deadliner) func() bool {
	if ctx.Done() == nil {
		return func() bool { return true }
	}
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = d.SetDeadline(aLongTimeAgo)
		close(interrupted)
	})
	return func() bool {
		if stop() {
			return true
		}
		<-interrupted
		_ = d.SetDeadline(time.Time{})
		return false
	}
}
