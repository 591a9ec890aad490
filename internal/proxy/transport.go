package proxy

import (
	"crypto/tls"
	"net/http"

	"github.com/die-net/sockstunnel/internal/dialer"
)

// NewTransport returns an http.Transport that dials through cfg.Dialer.
//
// If the dialer implements dialer.TLSDialer, https connections are handed to
// its DialTLSContext, which tunnels first and then runs TLS with the target
// over the tunnel; TLSClientConfig only applies otherwise.
func NewTransport(cfg Config) *http.Transport {
	maxIdle := cfg.HTTPMaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 100
	}

	t := &http.Transport{
		DialContext:         cfg.Dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        maxIdle,
		MaxIdleConnsPerHost: maxIdle,
		IdleConnTimeout:     cfg.HTTPIdleTimeout,
		TLSHandshakeTimeout: cfg.NegotiationTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ClientSessionCache: tls.NewLRUClientSessionCache(0),
		},
	}

	if td, ok := cfg.Dialer.(dialer.TLSDialer); ok {
		t.DialTLSContext = td.DialTLSContext
	}

	return t
}

// NewClient returns an http.Client using NewTransport.
func NewClient(cfg Config) *http.Client {
	return &http.Client{Transport: NewTransport(cfg)}
}
