package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies transport failures.
type ErrorKind int

const (
	// Unauthorized means the credential is invalid or expired.
	Unauthorized ErrorKind = iota + 1
	// NotFound means the remote object no longer exists.
	NotFound
	// RateLimited means the service asked us to back off.
	RateLimited
	// Network covers timeouts, connection failures and 5xx responses.
	Network
	// Protocol means the response was not what the backend expected.
	Protocol
	// Configuration means the backend is not set up and no pass may start.
	Configuration
)

func (k ErrorKind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not found"
	case RateLimited:
		return "rate limited"
	case Network:
		return "network"
	case Protocol:
		return "protocol"
	case Configuration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is returned by every Backend operation.
type Error struct {
	Kind ErrorKind
	Op   string // e.g. "list tasks"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the transport error kind from err.
// The second result is false when err carries no *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is a transport error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsNotFound reports whether err means the remote object vanished.
func IsNotFound(err error) bool {
	return IsKind(err, NotFound)
}
