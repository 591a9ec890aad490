package socks

import (
	"encoding/binary"
	"io"
	"net"
	"net/netip"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

// AddrType is the SOCKS5 ATYP value of an [Addr].
type AddrType byte

const (
	AddrIPv4   = AddrType(txsocks5.ATYPIPv4)
	AddrDomain = AddrType(txsocks5.ATYPDomain)
	AddrIPv6   = AddrType(txsocks5.ATYPIPv6)
)

// MaxDomainLen is the longest domain name the one-byte length field can carry.
const MaxDomainLen = 255

// maxAddrLen is the longest SOCKS5 address encoding: ATYP, length, name, port.
const maxAddrLen = 1 + 1 + MaxDomainLen + 2

// Addr is a destination the proxy is asked to connect to: an IPv4 address, an
// IPv6 address, or a domain name, plus a port.
//
// The zero Addr is invalid. Use [AddrFromAddrPort], [DomainAddr] or
// [ParseAddr] to construct one.
type Addr struct {
	ip   netip.Addr
	name string
	port uint16
}

// AddrFromAddrPort returns an IP destination. IPv4-mapped IPv6 addresses are
// unmapped so they travel as IPv4, and any zone is dropped.
func AddrFromAddrPort(ap netip.AddrPort) Addr {
	return Addr{ip: ap.Addr().Unmap().WithZone(""), port: ap.Port()}
}

// DomainAddr returns a domain-name destination. Names must be 1 to 255 bytes;
// longer names are rejected, never truncated.
func DomainAddr(name string, port uint16) (Addr, error) {
	if len(name) == 0 {
		return Addr{}, configError("empty domain name")
	}
	if len(name) > MaxDomainLen {
		return Addr{}, configError("domain name is %d bytes, limit is %d", len(name), MaxDomainLen)
	}
	return Addr{name: name, port: port}, nil
}

// ParseAddr parses "host:port". IP literals become IP destinations and
// anything else is treated as a domain name.
func ParseAddr(hostport string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Addr{}, configError("parse address %q: %w", hostport, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Addr{}, configError("parse port %q: %w", portStr, err)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		if ip.Zone() != "" {
			return Addr{}, configError("address %q has a zone, which SOCKS cannot carry", hostport)
		}
		return AddrFromAddrPort(netip.AddrPortFrom(ip, uint16(port))), nil
	}
	return DomainAddr(host, uint16(port))
}

// Type returns the address type, or 0 for the zero Addr.
func (a Addr) Type() AddrType {
	switch {
	case a.name != "":
		return AddrDomain
	case a.ip.Is4():
		return AddrIPv4
	case a.ip.Is6():
		return AddrIPv6
	default:
		return 0
	}
}

// IsValid reports whether a was built by one of the constructors.
func (a Addr) IsValid() bool {
	return a.Type() != 0
}

// Host returns the domain name or the textual IP address.
func (a Addr) Host() string {
	if a.name != "" {
		return a.name
	}
	if !a.ip.IsValid() {
		return ""
	}
	return a.ip.String()
}

func (a Addr) Port() uint16 {
	return a.port
}

// AddrPort returns the IP and port. It is invalid for domain destinations.
func (a Addr) AddrPort() netip.AddrPort {
	if a.name != "" {
		return netip.AddrPort{}
	}
	return netip.AddrPortFrom(a.ip, a.port)
}

func (a Addr) String() string {
	return net.JoinHostPort(a.Host(), strconv.Itoa(int(a.port)))
}

// AppendSOCKS4 appends DSTPORT and DSTIP. a must be IPv4.
func (a Addr) AppendSOCKS4(b []byte) []byte {
	if a.Type() != AddrIPv4 {
		panic("socks: AppendSOCKS4 on non-IPv4 address " + a.String())
	}
	b = binary.BigEndian.AppendUint16(b, a.port)
	ip4 := a.ip.As4()
	return append(b, ip4[:]...)
}

// AppendSOCKS5 appends ATYP, the address and the big-endian port.
//
//	+------+----------+----------+
//	| ATYP | DST.ADDR | DST.PORT |
//	+------+----------+----------+
//	|  1   | Variable |    2     |
//	+------+----------+----------+
func (a Addr) AppendSOCKS5(b []byte) []byte {
	switch a.Type() {
	case AddrIPv4:
		ip4 := a.ip.As4()
		b = append(b, byte(AddrIPv4))
		b = append(b, ip4[:]...)
	case AddrIPv6:
		ip6 := a.ip.As16()
		b = append(b, byte(AddrIPv6))
		b = append(b, ip6[:]...)
	case AddrDomain:
		b = append(b, byte(AddrDomain), byte(len(a.name)))
		b = append(b, a.name...)
	default:
		panic("socks: AppendSOCKS5 on zero Addr")
	}
	return binary.BigEndian.AppendUint16(b, a.port)
}

// ReadSOCKS5Addr reads exactly one ATYP-tagged address and port from r.
//
// An unknown ATYP or a zero-length domain name is reported as an [*Error] of
// [KindMalformed]. Read errors are returned as is.
func ReadSOCKS5Addr(r io.Reader) (Addr, error) {
	var b [maxAddrLen]byte
	if _, err := io.ReadFull(r, b[:2]); err != nil {
		return Addr{}, err
	}

	var a Addr
	var rest []byte
	switch atyp := AddrType(b[0]); atyp {
	case AddrIPv4:
		rest = b[2 : 2+4-1+2]
	case AddrIPv6:
		rest = b[2 : 2+16-1+2]
	case AddrDomain:
		if b[1] == 0 {
			return Addr{}, &Error{Kind: KindMalformed, Err: errZeroDomainLen}
		}
		rest = b[2 : 2+int(b[1])+2]
	default:
		return Addr{}, &Error{Kind: KindMalformed, Err: AddrTypeError(atyp)}
	}
	if _, err := io.ReadFull(r, rest); err != nil {
		return Addr{}, err
	}

	// The first address byte was read along with ATYP.
	body := b[1 : 2+len(rest)]
	portAt := len(body) - 2
	switch AddrType(b[0]) {
	case AddrIPv4:
		a.ip = netip.AddrFrom4([4]byte(body[:4]))
	case AddrIPv6:
		a.ip = netip.AddrFrom16([16]byte(body[:16]))
	case AddrDomain:
		a.name = string(body[1:portAt])
	}
	a.port = binary.BigEndian.Uint16(body[portAt:])
	return a, nil
}
