package ibus

import (
	"errors"
	"fmt"
)

// SignatureError is the error returned when a type signature is
// malformed, or uses a type that IBus messages cannot carry.
type SignatureError struct {
	// Sig is the offending signature string.
	Sig string
	// Reason is an explanation of why the signature is invalid.
	Reason error
}

func (e SignatureError) Error() string {
	return fmt.Sprintf("invalid type signature %q: %s", e.Sig, e.Reason)
}

func (e SignatureError) Unwrap() error {
	return e.Reason
}

func sigErr(sig string, reason string, args ...any) error {
	return SignatureError{sig, fmt.Errorf(reason, args...)}
}

// TypeError is the error returned when a value cannot be represented
// in the IBus wire format, or doesn't match the signature it is being
// encoded against.
type TypeError struct {
	// Type is the name of the offending type.
	Type string
	// Reason is an explanation of why the value isn't representable.
	Reason error
}

func (e TypeError) Error() string {
	return fmt.Sprintf("ibus cannot represent %s: %s", e.Type, e.Reason)
}

func (e TypeError) Unwrap() error {
	return e.Reason
}

func typeErr(typeName string, reason string, args ...any) error {
	return TypeError{typeName, fmt.Errorf(reason, args...)}
}

// DecodeError is the error returned when a received message carries
// malformed wire data. The message it describes is discarded, but the
// connection remains usable.
type DecodeError struct {
	// Reason is an explanation of what was wrong with the data.
	Reason error
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("malformed message: %s", e.Reason)
}

func (e DecodeError) Unwrap() error {
	return e.Reason
}

func decodeErr(reason string, args ...any) error {
	return DecodeError{fmt.Errorf(reason, args...)}
}

// ProtocolError is the error returned when the remote peer violates
// the message protocol in a way that makes the connection's state
// untrustworthy. Protocol errors are fatal to the connection.
type ProtocolError struct {
	// Reason is an explanation of the violation.
	Reason error
}

func (e ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e ProtocolError) Unwrap() error {
	return e.Reason
}

// CallError is the error returned from failed IBus method calls.
type CallError struct {
	// Name is the machine-readable error name sent by the peer, such
	// as "org.freedesktop.DBus.Error.Failed".
	Name string
	// Detail is the peer's explanation of the failure. It may be
	// empty.
	Detail string
}

func (e CallError) Error() string {
	if e.Detail == "" {
		return "call error " + e.Name
	}
	return "call error " + e.Name + ": " + e.Detail
}

// ErrEventPending is the error returned by
// [InputContext.ProcessKeyEvent] when a previous key event is still
// waiting for the engine's verdict.
var ErrEventPending = errors.New("a key event is already being processed")
