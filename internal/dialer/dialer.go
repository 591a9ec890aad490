package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/die-net/sockstunnel/internal/socks"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TLSDialer is a Dialer that can also return connections with TLS already
// established to the target, as http.Transport.DialTLSContext expects.
type TLSDialer interface {
	Dialer
	DialTLSContext(ctx context.Context, network, address string) (net.Conn, error)
}

// New parses upstream and constructs the appropriate outbound Dialer.
//
// Supported schemes:
//   - direct://
//   - socks4://[userid@]host:port
//   - socks5://[user:pass@]host:port
//   - socks5h://[user:pass@]host:port (same as socks5)
//
// A default port of 1080 is applied if the URL host is missing a port.
func New(cfg Config, upstream string) (Dialer, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	if u.Path != "" && u.Path != "/" {
		return nil, errors.New("invalid URL: path should be empty")
	}

	switch u.Scheme {
	case "":
		return nil, errors.New("invalid url: missing scheme")
	case "direct":
		return NewDirectDialer(cfg)
	case "socks4", "socks5", "socks5h":
		p, err := ProxyFromURL(u)
		if err != nil {
			return nil, err
		}
		d, err := NewSOCKSProxyDialer(cfg, p)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
}

// ProxyFromURL converts a socks4, socks5 or socks5h URL into a proxy
// descriptor. For socks4 the URL username is the user-id; for socks5 the
// userinfo becomes username/password credentials.
func ProxyFromURL(u *url.URL) (socks.Proxy, error) {
	host := u.Hostname()
	if host == "" {
		return nil, errors.New("invalid url: missing host")
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(host, defaultPort)
	}

	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}

	switch strings.ToLower(u.Scheme) {
	case "socks4":
		if strings.IndexByte(user, 0) >= 0 {
			return nil, errors.New("invalid url: socks4 user-id contains NUL")
		}
		return socks.SOCKS4{Address: addr, UserID: user}, nil
	case "socks5", "socks5h":
		p := socks.SOCKS5{Address: addr}
		if user != "" {
			auth, err := socks.NewAuth(user, pass)
			if err != nil {
				return nil, fmt.Errorf("invalid url: %w", err)
			}
			p.Auth = auth
		}
		return p, nil
	default:
		return nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
}

const defaultPort = "1080"
