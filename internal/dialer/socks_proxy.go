package dialer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/die-net/sockstunnel/internal/socks"
)

// SOCKSProxyDialer dials outbound TCP connections through a SOCKS4 or SOCKS5
// proxy using the CONNECT command.
type SOCKSProxyDialer struct {
	cfg     Config
	proxy   socks.Proxy
	forward Dialer
}

// NewSOCKSProxyDialer constructs a dialer for p that reaches the proxy with a
// direct connection.
func NewSOCKSProxyDialer(cfg Config, p socks.Proxy) (*SOCKSProxyDialer, error) {
	direct, err := NewDirectDialer(cfg)
	if err != nil {
		return nil, err
	}
	return newSOCKSProxyDialer(cfg, p, direct)
}

func newSOCKSProxyDialer(cfg Config, p socks.Proxy, forward Dialer) (*SOCKSProxyDialer, error) {
	if p == nil {
		return nil, errors.New("socks proxy dialer: missing proxy")
	}
	if _, _, err := net.SplitHostPort(p.ProxyAddr()); err != nil {
		return nil, fmt.Errorf("socks proxy dialer: invalid proxy address: %w", err)
	}
	return &SOCKSProxyDialer{cfg: cfg, proxy: p, forward: forward}, nil
}

// Proxy returns the proxy descriptor.
func (f *SOCKSProxyDialer) Proxy() socks.Proxy {
	return f.proxy
}

// Dial is DialContext with a background context, for golang.org/x/net/proxy.
func (f *SOCKSProxyDialer) Dial(network, address string) (net.Conn, error) {
	return f.DialContext(context.Background(), network, address)
}

// DialContext establishes a TCP connection to address via the configured
// proxy, returned as a net.Conn.
//
// The handshake is performed synchronously before returning. If
// NegotiationTimeout is set, a deadline is applied during negotiation and
// cleared before returning.
func (f *SOCKSProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f.dial(ctx, network, address, nil)
}

// DialTLSContext is like DialContext, then performs a TLS handshake with the
// target over the tunnel. NegotiationTimeout covers both.
func (f *SOCKSProxyDialer) DialTLSContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f.dial(ctx, network, address, TLSUpgrader(f.cfg.TLSConfig))
}

func (f *SOCKSProxyDialer) dial(ctx context.Context, network, address string, upgrade socks.Upgrader) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socks proxy dial %s %s: unsupported network", network, address)
	}

	target, err := f.target(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("socks proxy dial %s %s: %w", network, address, err)
	}

	c, err := f.forward.DialContext(ctx, "tcp", f.proxy.ProxyAddr())
	if err != nil {
		return nil, fmt.Errorf("socks proxy: %w", err)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(f.cfg.NegotiationTimeout))
	}

	h := socks.Handshake{Proxy: f.proxy, Upgrade: upgrade}
	if host, _, err := net.SplitHostPort(address); err == nil {
		if _, err := netip.ParseAddr(host); err != nil {
			h.ServerName = host
		}
	}
	tunnel, err := h.Connect(ctx, c, target)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("socks proxy dial %s %s: %w", network, address, err)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	return tunnel, nil
}

// target parses address. SOCKS4 cannot carry hostnames, so for a SOCKS4
// proxy they are resolved here to an IPv4 address.
func (f *SOCKSProxyDialer) target(ctx context.Context, address string) (socks.Addr, error) {
	a, err := socks.ParseAddr(address)
	if err != nil {
		return socks.Addr{}, err
	}
	if _, ok := f.proxy.(socks.SOCKS4); !ok || a.Type() != socks.AddrDomain {
		return a, nil
	}

	r := f.cfg.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	ips, err := r.LookupNetIP(ctx, "ip4", a.Host())
	if err != nil {
		return socks.Addr{}, fmt.Errorf("resolve %s for socks4: %w", a.Host(), err)
	}
	if len(ips) == 0 {
		return socks.Addr{}, fmt.Errorf("resolve %s for socks4: no IPv4 address", a.Host())
	}
	return socks.AddrFromAddrPort(netip.AddrPortFrom(ips[0], a.Port())), nil
}

// TLSUpgrader returns a socks.Upgrader that runs a crypto/tls client
// handshake. base may be nil.
func TLSUpgrader(base *tls.Config) socks.Upgrader {
	return func(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error) {
		cfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if base != nil {
			cfg = base.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = serverName
		}

		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, fmt.Errorf("tls handshake with %s: %w", serverName, err)
		}
		return tlsConn, nil
	}
}
