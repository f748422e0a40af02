package common

import (
	"errors"
	"fmt"
)

// Kind classifies a failure per the propagation policy: configuration errors
// abort startup, connection and timeout errors are recovered locally, validation
// and remote errors are always surfaced to the caller.
type Kind string

const (
	KindConfig         Kind = "CONFIG"
	KindConnection     Kind = "CONNECTION"
	KindValidation     Kind = "VALIDATION"
	KindRemote         Kind = "REMOTE"
	KindTimeout        Kind = "TIMEOUT"
	KindReconciliation Kind = "RECONCILIATION"
)

// Error is the venue-facing error type. Code/Message carry the venue's payload
// verbatim for KindRemote; Err holds an underlying transport error when present.
type Error struct {
	Kind    Kind
	Code    int64
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Kind == KindRemote {
		return fmt.Sprintf("venue error %d: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigError reports a fatal startup misconfiguration.
func NewConfigError(msg string) *Error {
	return &Error{Kind: KindConfig, Message: msg}
}

// NewConnectionError wraps a transport failure.
func NewConnectionError(msg string, err error) *Error {
	return &Error{Kind: KindConnection, Message: msg, Err: err}
}

// NewValidationError reports a pre-send rejection; the order never reaches the wire.
func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NewRemoteError carries a venue-reported code/message verbatim.
func NewRemoteError(code int64, msg string) *Error {
	return &Error{Kind: KindRemote, Code: code, Message: msg}
}

// NewTimeoutError reports a request deadline exceeded with no confirmed outcome.
func NewTimeoutError(msg string) *Error {
	return &Error{Kind: KindTimeout, Message: msg}
}

// NewReconciliationError flags a locally tracked order that could not be
// confirmed against the venue after reconnection.
func NewReconciliationError(msg string) *Error {
	return &Error{Kind: KindReconciliation, Message: msg}
}

// KindOf classifies any error; errors outside the taxonomy report KindConnection
// when they wrap one, otherwise an empty Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
