package catalog

import (
	"errors"
	"fmt"
)

// StoreError represents a domain error from catalog operations.
//
// These are business logic errors (row not found, lineage already moved on)
// as opposed to infrastructure errors. Infrastructure failures are reported
// with Code ErrIOError so callers can treat them as transient.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// ID is the object, grant or storage key the error refers to (if any)
	ID string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.ID != "" {
		msg += ": " + e.ID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a catalog error.
type ErrorCode int

const (
	// ErrNotFound indicates the object or grant doesn't exist for the tenant
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates a row with the same id already exists
	ErrAlreadyExists

	// ErrNotLatest indicates Supersede targeted a version that is no longer
	// the latest of its lineage (another writer won the race)
	ErrNotLatest

	// ErrInvalidArgument indicates a malformed row or request
	ErrInvalidArgument

	// ErrGrantInactive indicates a grant is expired or revoked
	ErrGrantInactive

	// ErrIOError indicates the backing database failed
	ErrIOError
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrNotLatest:
		return "not latest"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrGrantInactive:
		return "grant inactive"
	case ErrIOError:
		return "i/o error"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// NewError builds a *StoreError.
func NewError(code ErrorCode, message, id string) *StoreError {
	return &StoreError{Code: code, Message: message, ID: id}
}

// IOError wraps an infrastructure failure.
func IOError(op string, err error) *StoreError {
	return &StoreError{Code: ErrIOError, Message: op, Err: err}
}

// CodeOf returns the ErrorCode carried by err, if it is (or wraps) a
// *StoreError.
func CodeOf(err error) (ErrorCode, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsNotFound reports whether err is a catalog not-found error.
func IsNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrNotFound
}

// IsNotLatest reports whether err is a lost supersede race.
func IsNotLatest(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrNotLatest
}

// IsAlreadyExists reports whether err is a duplicate-id error.
func IsAlreadyExists(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrAlreadyExists
}
