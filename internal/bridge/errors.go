package bridge

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the bridge can hand back to a caller.
// No bridge failure is fatal to the process; each one maps to exactly one of
// these kinds.
type ErrorKind string

const (
	// KindNotConnected: dispatch attempted with no live connection.
	KindNotConnected ErrorKind = "not_connected"
	// KindEncodingError: parameters could not be serialized; nothing was sent.
	KindEncodingError ErrorKind = "encoding_error"
	// KindTransportError: socket-level send/receive failure.
	KindTransportError ErrorKind = "transport_error"
	// KindConnectionClosed: connection torn down while the call was pending.
	KindConnectionClosed ErrorKind = "connection_closed"
	// KindTimeout: no terminal event arrived within the deadline.
	KindTimeout ErrorKind = "timeout"
	// KindRemoteError: the plugin reported failure; message passed through.
	KindRemoteError ErrorKind = "remote_error"
)

// Error is the bridge's error type. Callers match on Kind via errors.As or
// the Is* helpers; Cause preserves the underlying error for logging.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match two bridge errors by kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the bridge error kind of err, or "" if err is not a bridge
// error.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsNotConnected reports whether err is a NotConnected bridge error.
func IsNotConnected(err error) bool { return KindOf(err) == KindNotConnected }

// IsTimeout reports whether err is a Timeout bridge error.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsConnectionClosed reports whether err is a ConnectionClosed bridge error.
func IsConnectionClosed(err error) bool { return KindOf(err) == KindConnectionClosed }

// IsRemoteError reports whether err is a RemoteError bridge error.
func IsRemoteError(err error) bool { return KindOf(err) == KindRemoteError }
