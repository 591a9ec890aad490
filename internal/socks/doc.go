// Package socks implements the client side of the SOCKS4 and SOCKS5 CONNECT
// handshakes.
//
// A [Handshake] drives the negotiation for one [Proxy] over a stream that is
// already connected to the proxy server. On success the same stream is handed
// back, positioned at the first byte of tunneled payload, optionally after an
// injected [Upgrader] has layered TLS on top of it.
//
// The proxy variants form a closed set:
//   - [SOCKS4]: a single request/reply round trip to an IPv4 destination
//   - [SOCKS5]: greeting, optional username/password sub-negotiation, then
//     the CONNECT request
//
// Failures are reported as [*Error] values classified by [Kind] and the
// [Stage] that was in progress. Use errors.Is with [ErrInvalidConfig],
// [ErrMalformed], [ErrAuthFailed] or [ErrRejected] to test the class, and
// errors.Is or errors.As with a [SOCKS4Status] or [SOCKS5Reply] for the exact
// reason the proxy gave.
//
// The package holds no state between handshakes, never logs, and never closes
// the stream it was given; the caller owns the connection.
//
// Example usage:
//
//	target, _ := socks.ParseAddr("example.com:443")
//	h := socks.Handshake{
//	    Proxy: socks.SOCKS5{Address: "127.0.0.1:1080"},
//	}
//	tunnel, err := h.Connect(ctx, conn, target)
package socks
