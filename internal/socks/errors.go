package socks

import (
	"errors"
	"fmt"
	"io"
)

// Kind classifies a handshake failure.
type Kind uint8

const (
	// KindConfig is a caller error detected before any I/O.
	KindConfig Kind = iota + 1
	// KindMalformed is a short read or a reply that violates the framing.
	KindMalformed
	// KindAuth is a failed or impossible authentication negotiation.
	KindAuth
	// KindRejected is a well-formed refusal from the proxy.
	KindRejected
	// KindTransport is an error from the underlying stream or TLS layer.
	KindTransport
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMalformed     = errors.New("malformed reply")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrRejected      = errors.New("request rejected")

	// ErrNoAcceptableMethod is returned when the SOCKS5 server answers the
	// greeting with method 0xFF.
	ErrNoAcceptableMethod = errors.New("no acceptable authentication method")

	// ErrMethodMismatch matches any [MethodError].
	ErrMethodMismatch = errors.New("authentication method mismatch")

	errZeroDomainLen = errors.New("zero-length domain name")
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindMalformed:
		return "malformed"
	case KindAuth:
		return "auth"
	case KindRejected:
		return "rejected"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrInvalidConfig
	case KindMalformed:
		return ErrMalformed
	case KindAuth:
		return ErrAuthFailed
	case KindRejected:
		return ErrRejected
	default:
		return nil
	}
}

// Stage names the negotiation step a failure happened in.
type Stage string

const (
	StageRequest  Stage = "socks4 request"
	StageGreeting Stage = "socks5 greeting"
	StageAuth     Stage = "socks5 auth"
	StageConnect  Stage = "socks5 connect"
	StageTLS      Stage = "tls"
)

// Error is the error type returned by every handshake operation.
//
// Err holds the underlying cause. For transport failures it is the stream's
// error, unchanged.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return "socks: " + e.Err.Error()
	}
	return "socks: " + string(e.Stage) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the class sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// VersionError is returned when a reply carries an unexpected version byte.
type VersionError byte

func (v VersionError) Error() string {
	return fmt.Sprintf("unexpected reply version %#02x", byte(v))
}

// MethodError is returned when the SOCKS5 server selects an authentication
// method the client did not offer or cannot perform.
type MethodError byte

func (m MethodError) Error() string {
	return fmt.Sprintf("server selected authentication method %#02x that was not offered", byte(m))
}

func (MethodError) Is(target error) bool {
	return target == ErrMethodMismatch
}

// AddrTypeError is returned when a reply carries an unknown address type.
type AddrTypeError byte

func (a AddrTypeError) Error() string {
	return fmt.Sprintf("unknown address type %#02x", byte(a))
}

func configError(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}

func transportError(stage Stage, err error) *Error {
	return &Error{Kind: KindTransport, Stage: stage, Err: err}
}

// readError classifies err from a read during stage. End of stream before a
// frame is complete is a framing failure; anything else came from the
// transport.
func readError(stage Stage, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Stage == "" {
			e.Stage = stage
		}
		return e
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Kind: KindMalformed, Stage: stage, Err: fmt.Errorf("short read: %w", err)}
	}
	return transportError(stage, err)
}

func readFull(r io.Reader, b []byte, stage Stage) error {
	if _, err := io.ReadFull(r, b); err != nil {
		return readError(stage, err)
	}
	return nil
}
