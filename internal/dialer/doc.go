// Package dialer provides outbound dialing implementations used by
// sockstunnel.
//
// Dialers implement a small interface (DialContext) and establish outbound
// connections either directly or through a SOCKS4 or SOCKS5 proxy. The SOCKS
// dialer opens the TCP connection to the proxy, bounds the handshake with
// NegotiationTimeout, and hands the stream to internal/socks. Its
// DialTLSContext additionally upgrades the tunnel with crypto/tls.
//
// The package also registers the "socks4" scheme with golang.org/x/net/proxy
// so that proxy.FromURL understands it.
package dialer
