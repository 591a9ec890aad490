package testutil

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"

	"github.com/txthinking/socks5"
	"golang.org/x/sync/errgroup"
)

// StartSOCKS5Server runs a relaying SOCKS5 server. If user is non-empty,
// username/password authentication is required.
func StartSOCKS5Server(t *testing.T, ctx context.Context, user, pass string) net.Listener {
	t.Helper()

	return StartServer(t, ctx, func(c net.Conn) {
		_ = HandleSOCKS5Connect(ctx, c, user, pass)
	})
}

// StartSOCKS4Server runs a relaying SOCKS4 server. If userID is non-empty,
// requests carrying any other user-id are rejected with 0x5b.
func StartSOCKS4Server(t *testing.T, ctx context.Context, userID string) net.Listener {
	t.Helper()

	return StartServer(t, ctx, func(c net.Conn) {
		_ = HandleSOCKS4Connect(ctx, c, userID)
	})
}

// HandleSOCKS5Connect serves one SOCKS5 CONNECT on c and relays until either
// side closes.
func HandleSOCKS5Connect(ctx context.Context, c net.Conn, user, pass string) error {
	neg, err := socks5.NewNegotiationRequestFrom(c)
	if err != nil {
		return err
	}

	if user == "" {
		if _, err := socks5.NewNegotiationReply(socks5.MethodNone).WriteTo(c); err != nil {
			return err
		}
	} else {
		if !containsMethod(neg.Methods, socks5.MethodUsernamePassword) {
			_, _ = socks5.NewNegotiationReply(0xff).WriteTo(c)
			return errors.New("client did not offer username/password")
		}
		if _, err := socks5.NewNegotiationReply(socks5.MethodUsernamePassword).WriteTo(c); err != nil {
			return err
		}

		urq, err := socks5.NewUserPassNegotiationRequestFrom(c)
		if err != nil {
			return err
		}
		if string(urq.Uname) != user || string(urq.Passwd) != pass {
			_, _ = socks5.NewUserPassNegotiationReply(socks5.UserPassStatusFailure).WriteTo(c)
			return nil
		}
		if _, err := socks5.NewUserPassNegotiationReply(socks5.UserPassStatusSuccess).WriteTo(c); err != nil {
			return err
		}
	}

	req, err := socks5.NewRequestFrom(c)
	if err != nil {
		return err
	}
	if req.Cmd != socks5.CmdConnect {
		_, _ = socks5.NewReply(socks5.RepCommandNotSupported, socks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(c)
		return nil
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		_, _ = socks5.NewReply(socks5.RepHostUnreachable, socks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(c)
		return nil
	}
	defer dst.Close()

	a, addr, port, err := socks5.ParseAddress(dst.LocalAddr().String())
	if err != nil {
		return err
	}
	if a == socks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := socks5.NewReply(socks5.RepSuccess, a, addr, port).WriteTo(c); err != nil {
		return err
	}

	return relay(c, dst)
}

// HandleSOCKS4Connect serves one SOCKS4 CONNECT on c and relays until either
// side closes.
func HandleSOCKS4Connect(ctx context.Context, c net.Conn, userID string) error {
	br := bufio.NewReader(c)
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return err
	}
	id, err := br.ReadString(0)
	if err != nil {
		return err
	}
	id = id[:len(id)-1]

	reply := func(status byte) error {
		_, err := c.Write([]byte{0x00, status, hdr[2], hdr[3], hdr[4], hdr[5], hdr[6], hdr[7]})
		return err
	}

	if hdr[0] != 0x04 || hdr[1] != 0x01 || (userID != "" && id != userID) {
		return reply(0x5b)
	}

	target := netip.AddrPortFrom(netip.AddrFrom4([4]byte(hdr[4:8])), binary.BigEndian.Uint16(hdr[2:4]))
	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", target.String())
	if err != nil {
		return reply(0x5b)
	}
	defer dst.Close()

	if err := reply(0x5a); err != nil {
		return err
	}
	return relay(c, dst)
}

func relay(a, b net.Conn) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(b, a)
		if cw, ok := b.(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		}
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(a, b)
		if cw, ok := a.(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		}
		return err
	})
	return g.Wait()
}

func containsMethod(methods []byte, want byte) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}
