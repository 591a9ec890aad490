package socks

import (
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

// methodNoAcceptable is the METHOD a server returns when it accepts none of
// the offered methods.
const methodNoAcceptable = 0xff

// SOCKS5 describes a SOCKS5 proxy.
type SOCKS5 struct {
	// Address is the proxy's own host:port.
	Address string
	// Auth, when set, is offered as username/password authentication in
	// addition to "no authentication".
	Auth *Auth
}

func (p SOCKS5) ProxyAddr() string {
	return p.Address
}

func (p SOCKS5) validate(target Addr) error {
	if !target.IsValid() {
		return configError("invalid target address")
	}
	if p.Auth != nil {
		return p.Auth.Validate()
	}
	return nil
}

func (p SOCKS5) negotiate(rw io.ReadWriter, target Addr) (Addr, error) {
	method, err := p.greet(rw)
	if err != nil {
		return Addr{}, err
	}
	if method == txsocks5.MethodUsernamePassword {
		if err := p.authenticate(rw); err != nil {
			return Addr{}, err
		}
	}
	return p.connect(rw, target)
}

// greet offers the authentication methods and returns the one the server
// picked.
//
//	+----+----------+----------+      +----+--------+
//	|VER | NMETHODS | METHODS  |  ->  |VER | METHOD |
//	+----+----------+----------+      +----+--------+
//	| 1  |    1     | 1 to 255 |      | 1  |   1    |
//	+----+----------+----------+      +----+--------+
func (p SOCKS5) greet(rw io.ReadWriter) (byte, error) {
	methods := []byte{txsocks5.MethodNone}
	if p.Auth != nil {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}
	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(rw); err != nil {
		return 0, transportError(StageGreeting, err)
	}

	var b [2]byte
	if err := readFull(rw, b[:], StageGreeting); err != nil {
		return 0, err
	}
	if b[0] != txsocks5.Ver {
		return 0, &Error{Kind: KindMalformed, Stage: StageGreeting, Err: VersionError(b[0])}
	}

	switch method := b[1]; method {
	case txsocks5.MethodNone:
		// Servers may skip authentication even when credentials were offered.
		return method, nil
	case txsocks5.MethodUsernamePassword:
		if p.Auth == nil {
			return 0, &Error{Kind: KindAuth, Stage: StageGreeting, Err: MethodError(method)}
		}
		return method, nil
	case methodNoAcceptable:
		return 0, &Error{Kind: KindAuth, Stage: StageGreeting, Err: ErrNoAcceptableMethod}
	default:
		return 0, &Error{Kind: KindAuth, Stage: StageGreeting, Err: MethodError(method)}
	}
}

// authenticate runs the RFC 1929 sub-negotiation.
//
//	+----+------+----------+------+----------+      +----+--------+
//	|VER | ULEN |  UNAME   | PLEN |  PASSWD  |  ->  |VER | STATUS |
//	+----+------+----------+------+----------+      +----+--------+
//	| 1  |  1   | 1 to 255 |  1   | 0 to 255 |      | 1  |   1    |
//	+----+------+----------+------+----------+      +----+--------+
func (p SOCKS5) authenticate(rw io.ReadWriter) error {
	req := txsocks5.NewUserPassNegotiationRequest([]byte(p.Auth.Username), []byte(p.Auth.Password))
	if _, err := req.WriteTo(rw); err != nil {
		return transportError(StageAuth, err)
	}

	var b [2]byte
	if err := readFull(rw, b[:], StageAuth); err != nil {
		return err
	}
	if b[0] != txsocks5.UserPassVer {
		return &Error{Kind: KindMalformed, Stage: StageAuth, Err: VersionError(b[0])}
	}
	if b[1] != txsocks5.UserPassStatusSuccess {
		return &Error{Kind: KindAuth, Stage: StageAuth, Err: fmt.Errorf("credentials rejected with status %#02x", b[1])}
	}
	return nil
}

// connect sends the CONNECT request and returns the bound address from the
// reply.
//
//	+----+-----+-------+------+----------+----------+
//	|VER | CMD |  RSV  | ATYP | DST.ADDR | DST.PORT |
//	+----+-----+-------+------+----------+----------+
//	| 1  |  1  | X'00' |  1   | Variable |    2     |
//	+----+-----+-------+------+----------+----------+
//
// The reply has the same shape with REP in place of CMD. A refusal is
// reported as soon as REP is read; the bound address is only consumed on
// success.
func (p SOCKS5) connect(rw io.ReadWriter, target Addr) (Addr, error) {
	b := make([]byte, 0, 3+maxAddrLen)
	b = append(b, txsocks5.Ver, txsocks5.CmdConnect, 0)
	b = target.AppendSOCKS5(b)
	if _, err := rw.Write(b); err != nil {
		return Addr{}, transportError(StageConnect, err)
	}

	hdr := b[:3]
	if err := readFull(rw, hdr, StageConnect); err != nil {
		return Addr{}, err
	}
	if hdr[0] != txsocks5.Ver {
		return Addr{}, &Error{Kind: KindMalformed, Stage: StageConnect, Err: VersionError(hdr[0])}
	}
	if rep := SOCKS5Reply(hdr[1]); rep != RepSucceeded {
		return Addr{}, &Error{Kind: KindRejected, Stage: StageConnect, Err: rep}
	}

	bound, err := ReadSOCKS5Addr(rw)
	if err != nil {
		return Addr{}, readError(StageConnect, err)
	}
	return bound, nil
}
