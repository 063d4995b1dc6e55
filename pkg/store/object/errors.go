package object

import "errors"

// ============================================================================
// Standard Object Store Errors
// ============================================================================

// Implementations wrap these with context, for example:
//
//	return fmt.Errorf("object %s: %w", key, object.ErrObjectNotFound)
//
// Callers test with errors.Is.

var (
	// ErrObjectNotFound indicates no object is stored under the key.
	ErrObjectNotFound = errors.New("object not found")

	// ErrKeyExists indicates Put targeted a key that is already occupied.
	//
	// Keys carry a random token, so this is a rare collision. Callers
	// regenerate the key and retry once.
	ErrKeyExists = errors.New("object key already exists")

	// ErrUnavailable indicates the backing store failed to perform I/O.
	//
	// This is the only transient error class: callers may retry with backoff.
	ErrUnavailable = errors.New("object storage unavailable")

	// ErrInvalidKey indicates the key is empty, too long, or contains
	// characters or segments that are not allowed.
	ErrInvalidKey = errors.New("invalid object key")
)
