package proxy

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/die-net/sockstunnel/internal/dialer"
	"github.com/die-net/sockstunnel/internal/socks"
	"github.com/die-net/sockstunnel/internal/testutil"
)

func get(t *testing.T, ctx context.Context, c *http.Client, u string) string {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	return string(body)
}

func TestClientThroughSOCKS(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Proto+" "+r.Host)
	})
	plain := httptest.NewServer(handler)
	defer plain.Close()
	secure := httptest.NewTLSServer(handler)
	defer secure.Close()

	roots := x509.NewCertPool()
	roots.AddCert(secure.Certificate())

	tests := []struct {
		name   string
		https  bool
		socks4 bool
		auth   bool
	}{
		{name: "v4_http", socks4: true},
		{name: "v4_https", socks4: true, https: true},
		{name: "v5_http"},
		{name: "v5_https", https: true},
		{name: "v5_http_auth", auth: true},
		{name: "v5_https_auth", auth: true, https: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			var p socks.Proxy
			switch {
			case tt.socks4:
				p = socks.SOCKS4{Address: testutil.StartSOCKS4Server(t, ctx, "").Addr().String()}
			case tt.auth:
				ln := testutil.StartSOCKS5Server(t, ctx, "hyper", "proxy")
				p = socks.SOCKS5{Address: ln.Addr().String(), Auth: &socks.Auth{Username: "hyper", Password: "proxy"}}
			default:
				p = socks.SOCKS5{Address: testutil.StartSOCKS5Server(t, ctx, "", "").Addr().String()}
			}

			dcfg := dialer.Config{
				DialTimeout:        time.Second,
				NegotiationTimeout: time.Second,
				TLSConfig:          &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12},
			}
			d, err := dialer.NewSOCKSProxyDialer(dcfg, p)
			if err != nil {
				t.Fatal(err)
			}

			c := NewClient(Config{Dialer: d, NegotiationTimeout: time.Second})
			defer c.CloseIdleConnections()

			srv := plain
			if tt.https {
				srv = secure
			}
			if got, want := get(t, ctx, c, srv.URL), "HTTP/1.1 "+srv.Listener.Addr().String(); got != want {
				t.Fatalf("got %q want %q", got, want)
			}
		})
	}
}

func TestClientHTTPSHostnameThroughSOCKS(t *testing.T) {
	srv, roots := testutil.StartTLSServerForHosts(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Host)
	}), "localhost")
	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	host := net.JoinHostPort("localhost", port)

	for _, name := range []string{"v4_https_hostname", "v5_https_hostname"} {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			var p socks.Proxy = socks.SOCKS5{Address: testutil.StartSOCKS5Server(t, ctx, "", "").Addr().String()}
			if name == "v4_https_hostname" {
				p = socks.SOCKS4{Address: testutil.StartSOCKS4Server(t, ctx, "").Addr().String()}
			}

			d, err := dialer.NewSOCKSProxyDialer(dialer.Config{
				DialTimeout: time.Second,
				TLSConfig:   &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12},
			}, p)
			if err != nil {
				t.Fatal(err)
			}

			c := NewClient(Config{Dialer: d, NegotiationTimeout: time.Second})
			defer c.CloseIdleConnections()

			if got := get(t, ctx, c, "https://"+host+"/"); got != host {
				t.Fatalf("got %q want %q", got, host)
			}
		})
	}
}

type countingDialer struct {
	dials atomic.Int32
}

func (d *countingDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	d.dials.Add(1)
	return nil, io.ErrUnexpectedEOF
}

func TestClientUnsupportedScheme(t *testing.T) {
	d := &countingDialer{}
	c := NewClient(Config{Dialer: d})

	if _, err := c.Get("not-http://google.com"); err == nil {
		t.Fatal("expected error")
	}
	if n := d.dials.Load(); n != 0 {
		t.Fatalf("dialed %d times", n)
	}
}

func TestNewTransportUsesTLSDialer(t *testing.T) {
	d, err := dialer.NewSOCKSProxyDialer(dialer.Config{}, socks.SOCKS5{Address: "127.0.0.1:1080"})
	if err != nil {
		t.Fatal(err)
	}
	if tr := NewTransport(Config{Dialer: d}); tr.DialTLSContext == nil {
		t.Fatal("DialTLSContext not set for a TLS-capable dialer")
	}
	if tr := NewTransport(Config{Dialer: &countingDialer{}}); tr.DialTLSContext != nil {
		t.Fatal("DialTLSContext set for a plain dialer")
	}
}
