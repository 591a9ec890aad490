package socks

import (
	"encoding/binary"
	"io"
	"net/netip"
	"strings"
)

const (
	socks4Version    = 0x04
	socks4CmdConnect = 0x01
	socks4ReplyLen   = 8
)

// SOCKS4 describes a SOCKS4 proxy. Only IPv4 targets can be reached through
// it.
type SOCKS4 struct {
	// Address is the proxy's own host:port.
	Address string
	// UserID is sent in the USERID field. It may be empty but must not
	// contain a NUL byte.
	UserID string
}

func (p SOCKS4) ProxyAddr() string {
	return p.Address
}

func (p SOCKS4) validate(target Addr) error {
	if target.Type() != AddrIPv4 {
		return configError("socks4 can only connect to IPv4 destinations, not %q", target.String())
	}
	if strings.IndexByte(p.UserID, 0) >= 0 {
		return configError("socks4 user-id contains a NUL byte")
	}
	return nil
}

// negotiate performs the single request/reply exchange.
//
// Request:
//
//	+----+----+---------+--------+--------+------+
//	| VN | CD | DSTPORT | DSTIP  | USERID | NULL |
//	+----+----+---------+--------+--------+------+
//	| 1  | 1  |    2    |   4    |  var   |  1   |
//	+----+----+---------+--------+--------+------+
//
// Reply:
//
//	+----+----+---------+--------+
//	| VN | CD | DSTPORT | DSTIP  |
//	+----+----+---------+--------+
//	| 1  | 1  |    2    |   4    |
//	+----+----+---------+--------+
func (p SOCKS4) negotiate(rw io.ReadWriter, target Addr) (Addr, error) {
	b := make([]byte, 0, 2+2+4+len(p.UserID)+1)
	b = append(b, socks4Version, socks4CmdConnect)
	b = target.AppendSOCKS4(b)
	b = append(b, p.UserID...)
	b = append(b, 0)
	if _, err := rw.Write(b); err != nil {
		return Addr{}, transportError(StageRequest, err)
	}

	reply := b[:socks4ReplyLen]
	if err := readFull(rw, reply, StageRequest); err != nil {
		return Addr{}, err
	}
	if reply[0] != 0 {
		return Addr{}, &Error{Kind: KindMalformed, Stage: StageRequest, Err: VersionError(reply[0])}
	}
	if status := SOCKS4Status(reply[1]); status != SOCKS4Granted {
		return Addr{}, &Error{Kind: KindRejected, Stage: StageRequest, Err: status}
	}

	// DSTPORT and DSTIP in a reply are informational only.
	bound := netip.AddrPortFrom(netip.AddrFrom4([4]byte(reply[4:8])), binary.BigEndian.Uint16(reply[2:4]))
	return AddrFromAddrPort(bound), nil
}
