// Package kverrors defines the store's error taxonomy as kinded errors, so
// callers can branch on Kind with errors.As. The connection pool and the
// storage engine return these; the other packages log failures or return
// plain errors.
package kverrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from the error handling design.
type Kind string

const (
	// IdentifierNotFound is returned by the connection pool when neither the
	// alias nor the remote address table has an entry for the requested name.
	IdentifierNotFound Kind = "identifier_not_found"
	// DecodeError is returned when a wire frame or JSON payload is malformed.
	DecodeError Kind = "decode_error"
	// IOError wraps a socket or file system failure.
	IOError Kind = "io_error"
	// QuorumTimeout marks a coordinator pending-request entry that expired
	// before the configured quorum of replica responses arrived.
	QuorumTimeout Kind = "quorum_timeout"
	// InvalidRequest marks an unknown operation or a request_hash mismatch.
	InvalidRequest Kind = "invalid_request"
	// DuplicateIdentifier marks an alias collision in the connection pool.
	DuplicateIdentifier Kind = "duplicate_identifier"
)

// Error is a kinded, wrapped error carrying the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap lets errors.Is/errors.As reach the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// New builds a kinded error for op, optionally wrapping a lower-level cause.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given kind, anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
