package socks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strings"
	"testing"

	txsocks5 "github.com/txthinking/socks5"
)

func TestSOCKS5UserPassSuccess(t *testing.T) {
	t.Parallel()

	target := mustDomain(t, "example.com", 443)
	payload := []byte("tunnel")
	var stages []string

	conn, g := startScript(t, func(c net.Conn) error {
		neg, err := txsocks5.NewNegotiationRequestFrom(c)
		if err != nil {
			return err
		}
		if !bytes.Equal(neg.Methods, []byte{txsocks5.MethodNone, txsocks5.MethodUsernamePassword}) {
			return fmt.Errorf("offered methods %x", neg.Methods)
		}
		stages = append(stages, "greeting")
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodUsernamePassword).WriteTo(c); err != nil {
			return err
		}

		urq, err := txsocks5.NewUserPassNegotiationRequestFrom(c)
		if err != nil {
			return err
		}
		if string(urq.Uname) != "hyper" || string(urq.Passwd) != "proxy" {
			return fmt.Errorf("credentials %q/%q", urq.Uname, urq.Passwd)
		}
		stages = append(stages, "auth")
		if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(c); err != nil {
			return err
		}

		req, err := txsocks5.NewRequestFrom(c)
		if err != nil {
			return err
		}
		if req.Cmd != txsocks5.CmdConnect || req.Address() != "example.com:443" {
			return fmt.Errorf("request cmd %d address %s", req.Cmd, req.Address())
		}
		stages = append(stages, "connect")
		reply := []byte{5, 0, 0, 1, 192, 0, 2, 1, 0x04, 0x38}
		_, err = c.Write(append(reply, payload...))
		return err
	})

	h := Handshake{Proxy: SOCKS5{Address: "127.0.0.1:1080", Auth: &Auth{Username: "hyper", Password: "proxy"}}}
	bound, err := h.Negotiate(context.Background(), conn, target)
	if err != nil {
		t.Fatal(err)
	}
	if want := netip.MustParseAddrPort("192.0.2.1:1080"); bound.AddrPort() != want {
		t.Fatalf("bound %v want %v", bound, want)
	}
	got, err := readN(conn, len(payload))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload %q want %q", got, payload)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(stages, ","); got != "greeting,auth,connect" {
		t.Fatalf("stages %s", got)
	}
}

func TestSOCKS5NoAuthSkipsSubNegotiation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		auth *Auth
	}{
		{name: "no credentials"},
		{name: "credentials ignored by server", auth: &Auth{Username: "u", Password: "p"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn, g := startScript(t, func(c net.Conn) error {
				if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
					return err
				}
				if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c); err != nil {
					return err
				}
				req, err := txsocks5.NewRequestFrom(c)
				if err != nil {
					return err
				}
				if req.Address() != "[2001:db8::5]:8443" {
					return fmt.Errorf("address %s", req.Address())
				}
				bound := netip.MustParseAddr("2001:db8::1").As16()
				_, err = txsocks5.NewReply(txsocks5.RepSuccess, txsocks5.ATYPIPv6, bound[:], []byte{0x1f, 0x90}).WriteTo(c)
				return err
			})

			target := AddrFromAddrPort(netip.MustParseAddrPort("[2001:db8::5]:8443"))
			bound, err := Handshake{Proxy: SOCKS5{Auth: tt.auth}}.Negotiate(context.Background(), conn, target)
			if err != nil {
				t.Fatal(err)
			}
			if want := netip.MustParseAddrPort("[2001:db8::1]:8080"); bound.AddrPort() != want {
				t.Fatalf("bound %v want %v", bound, want)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestSOCKS5GreetingFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		auth    *Auth
		reply   []byte
		wantErr []error
	}{
		{
			name:    "no acceptable method",
			reply:   []byte{5, 0xff},
			wantErr: []error{ErrAuthFailed, ErrNoAcceptableMethod},
		},
		{
			name:    "no acceptable method with credentials",
			auth:    &Auth{Username: "u", Password: "p"},
			reply:   []byte{5, 0xff},
			wantErr: []error{ErrAuthFailed, ErrNoAcceptableMethod},
		},
		{
			name:    "userpass not offered",
			reply:   []byte{5, 0x02},
			wantErr: []error{ErrAuthFailed, ErrMethodMismatch, MethodError(0x02)},
		},
		{
			name:    "gssapi selected",
			auth:    &Auth{Username: "u", Password: "p"},
			reply:   []byte{5, 0x01},
			wantErr: []error{ErrAuthFailed, ErrMethodMismatch},
		},
		{
			name:    "socks4 server",
			reply:   []byte{0, 0x5b},
			wantErr: []error{ErrMalformed, VersionError(0)},
		},
		{
			name:    "short reply",
			reply:   []byte{5},
			wantErr: []error{ErrMalformed, io.ErrUnexpectedEOF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn, g := startScript(t, func(c net.Conn) error {
				if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
					return err
				}
				if _, err := c.Write(tt.reply); err != nil {
					return err
				}
				if len(tt.reply) < 2 {
					return nil
				}
				return expectEOF(c)
			})

			_, err := Connect(context.Background(), conn, SOCKS5{Auth: tt.auth}, mustDomain(t, "example.com", 80))
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Fatalf("got %v want %v", err, want)
				}
			}
			var e *Error
			if !errors.As(err, &e) || e.Stage != StageGreeting {
				t.Fatalf("got %#v want stage %q", err, StageGreeting)
			}

			_ = conn.Close()
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestSOCKS5AuthFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   []byte
		wantErr error
	}{
		{name: "status failure", reply: []byte{1, 1}, wantErr: ErrAuthFailed},
		{name: "status other", reply: []byte{1, 0x80}, wantErr: ErrAuthFailed},
		{name: "wrong version", reply: []byte{5, 0}, wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn, g := startScript(t, func(c net.Conn) error {
				if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
					return err
				}
				if _, err := c.Write([]byte{5, 2}); err != nil {
					return err
				}
				if _, err := txsocks5.NewUserPassNegotiationRequestFrom(c); err != nil {
					return err
				}
				if _, err := c.Write(tt.reply); err != nil {
					return err
				}
				return expectEOF(c)
			})

			auth := &Auth{Username: "user", Password: "wrong"}
			_, err := Connect(context.Background(), conn, SOCKS5{Auth: auth}, mustDomain(t, "example.com", 80))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v want %v", err, tt.wantErr)
			}
			var e *Error
			if !errors.As(err, &e) || e.Stage != StageAuth {
				t.Fatalf("got %#v want stage %q", err, StageAuth)
			}

			_ = conn.Close()
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestSOCKS5ConnectRejected(t *testing.T) {
	t.Parallel()

	reasons := []SOCKS5Reply{
		RepGeneralFailure,
		RepNotAllowed,
		RepNetworkUnreachable,
		RepHostUnreachable,
		RepConnectionRefused,
		RepTTLExpired,
		RepCommandNotSupported,
		RepAddressNotSupported,
		SOCKS5Reply(0x09),
	}

	for _, rep := range reasons {
		t.Run(rep.Error(), func(t *testing.T) {
			t.Parallel()

			conn, g := startScript(t, func(c net.Conn) error {
				if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
					return err
				}
				if _, err := c.Write([]byte{5, 0}); err != nil {
					return err
				}
				if _, err := txsocks5.NewRequestFrom(c); err != nil {
					return err
				}
				// The client stops reading after REP, so the rest of the
				// reply may never be consumed.
				_, _ = c.Write([]byte{5, byte(rep), 0, 1, 0, 0, 0, 0, 0, 0})
				return nil
			})

			target := AddrFromAddrPort(netip.MustParseAddrPort("203.0.113.10:22"))
			got, err := Connect(context.Background(), conn, SOCKS5{}, target)
			if got != nil {
				t.Fatal("got a stream on failure")
			}
			if !errors.Is(err, ErrRejected) || !errors.Is(err, rep) {
				t.Fatalf("got %v want %v", err, rep)
			}
			var reply SOCKS5Reply
			if !errors.As(err, &reply) || reply != rep {
				t.Fatalf("errors.As got %v want %v", reply, rep)
			}
			for _, other := range reasons {
				if other != rep && errors.Is(err, other) {
					t.Fatalf("%v also matches %v", err, other)
				}
			}

			_ = conn.Close()
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestSOCKS5ConnectMaxDomain(t *testing.T) {
	t.Parallel()

	name := strings.Repeat("a", 255)
	target := mustDomain(t, name, 80)

	conn, g := startScript(t, func(c net.Conn) error {
		if _, err := readN(c, 3); err != nil {
			return err
		}
		if _, err := c.Write([]byte{5, 0}); err != nil {
			return err
		}
		req, err := readN(c, 3+1+1+255+2)
		if err != nil {
			return err
		}
		want := append([]byte{5, 1, 0, 3, 255}, name...)
		want = append(want, 0, 80)
		if !bytes.Equal(req, want) {
			return fmt.Errorf("request %x", req)
		}
		// Bound address as a domain.
		_, err = c.Write(append(append([]byte{5, 0, 0, 3, 5}, "relay"...), 0x30, 0x39))
		return err
	})

	bound, err := Handshake{Proxy: SOCKS5{}}.Negotiate(context.Background(), conn, target)
	if err != nil {
		t.Fatal(err)
	}
	if bound.Type() != AddrDomain || bound.String() != "relay:12345" {
		t.Fatalf("bound %v", bound)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestSOCKS5ConnectMalformedReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   []byte
		wantErr []error
	}{
		{name: "bad version", reply: []byte{4, 0, 0, 1, 0, 0, 0, 0, 0, 0}, wantErr: []error{ErrMalformed, VersionError(4)}},
		{name: "bad address type", reply: []byte{5, 0, 0, 2, 0, 0, 0, 0, 0, 0}, wantErr: []error{ErrMalformed, AddrTypeError(2)}},
		{name: "empty domain", reply: []byte{5, 0, 0, 3, 0, 0, 0}, wantErr: []error{ErrMalformed}},
		{name: "truncated address", reply: []byte{5, 0, 0, 1, 127, 0}, wantErr: []error{ErrMalformed, io.ErrUnexpectedEOF}},
		{name: "truncated header", reply: []byte{5, 0}, wantErr: []error{ErrMalformed, io.ErrUnexpectedEOF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn, g := startScript(t, func(c net.Conn) error {
				if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
					return err
				}
				if _, err := c.Write([]byte{5, 0}); err != nil {
					return err
				}
				if _, err := txsocks5.NewRequestFrom(c); err != nil {
					return err
				}
				_, _ = c.Write(tt.reply)
				return nil
			})

			_, err := Connect(context.Background(), conn, SOCKS5{}, mustDomain(t, "example.com", 80))
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Fatalf("got %v want %v", err, want)
				}
			}
			var e *Error
			if !errors.As(err, &e) || e.Stage != StageConnect {
				t.Fatalf("got %#v want stage %q", err, StageConnect)
			}

			_ = conn.Close()
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}
