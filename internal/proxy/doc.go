// Package proxy connects higher-level transports to a SOCKS tunnel.
//
// NewTransport and NewClient build an http.Transport whose plain connections
// come from the configured dialer and whose https connections are tunneled
// and then upgraded to TLS by the dialer itself. HTTPProxyServer is a local
// HTTP forward proxy (CONNECT and non-CONNECT) that sends all outbound
// traffic through the same dialer, so HTTP-only clients can use a SOCKS
// proxy.
package proxy
