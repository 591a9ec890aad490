package dialer

import (
	"context"
	"net"
	"net/url"

	"golang.org/x/net/proxy"
)

var (
	_ proxy.Dialer        = (*SOCKSProxyDialer)(nil)
	_ proxy.ContextDialer = (*SOCKSProxyDialer)(nil)
)

// golang.org/x/net/proxy handles socks5 itself; socks4 is added here.
func init() {
	proxy.RegisterDialerType("socks4", fromURL)
}

func fromURL(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
	p, err := ProxyFromURL(u)
	if err != nil {
		return nil, err
	}
	d, err := newSOCKSProxyDialer(Config{}, p, forwardDialer{forward})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// forwardDialer adapts a proxy.Dialer to Dialer.
type forwardDialer struct {
	d proxy.Dialer
}

func (f forwardDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := f.d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}
	return f.d.Dial(network, address)
}
