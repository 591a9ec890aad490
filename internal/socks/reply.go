package socks

import "fmt"

// SOCKS4Status is the CD field of a SOCKS4 reply. Every value other than
// [SOCKS4Granted] is a refusal and is returned as an error.
type SOCKS4Status byte

const (
	SOCKS4Granted           SOCKS4Status = 0x5a
	SOCKS4Rejected          SOCKS4Status = 0x5b
	SOCKS4IdentdUnreachable SOCKS4Status = 0x5c
	SOCKS4IdentdMismatch    SOCKS4Status = 0x5d
)

func (s SOCKS4Status) Error() string {
	switch s {
	case SOCKS4Granted:
		return "request granted"
	case SOCKS4Rejected:
		return "request rejected or failed"
	case SOCKS4IdentdUnreachable:
		return "request rejected: proxy cannot reach client identd"
	case SOCKS4IdentdMismatch:
		return "request rejected: identd reported a different user-id"
	default:
		return fmt.Sprintf("request rejected with unknown status %#02x", byte(s))
	}
}

// SOCKS5Reply is the REP field of a SOCKS5 reply. Every value other than
// [RepSucceeded] is a refusal and is returned as an error.
type SOCKS5Reply byte

// Reply values as defined in RFC 1928 section 6.
const (
	RepSucceeded           SOCKS5Reply = 0x00
	RepGeneralFailure      SOCKS5Reply = 0x01
	RepNotAllowed          SOCKS5Reply = 0x02
	RepNetworkUnreachable  SOCKS5Reply = 0x03
	RepHostUnreachable     SOCKS5Reply = 0x04
	RepConnectionRefused   SOCKS5Reply = 0x05
	RepTTLExpired          SOCKS5Reply = 0x06
	RepCommandNotSupported SOCKS5Reply = 0x07
	RepAddressNotSupported SOCKS5Reply = 0x08
)

func (r SOCKS5Reply) Error() string {
	switch r {
	case RepSucceeded:
		return "succeeded"
	case RepGeneralFailure:
		return "general SOCKS server failure"
	case RepNotAllowed:
		return "connection not allowed by ruleset"
	case RepNetworkUnreachable:
		return "network unreachable"
	case RepHostUnreachable:
		return "host unreachable"
	case RepConnectionRefused:
		return "connection refused"
	case RepTTLExpired:
		return "TTL expired"
	case RepCommandNotSupported:
		return "command not supported"
	case RepAddressNotSupported:
		return "address type not supported"
	default:
		return fmt.Sprintf("unknown reply %#02x", byte(r))
	}
}
