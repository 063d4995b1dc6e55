// Package object defines the storage-agnostic byte store used by DittoStore
// and the errors every backend reports. Backends live in sub-packages
// (fs, memory, s3) and are verified by the shared suite in object/testing.
package object

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// ============================================================================
// ObjectStore Interface
// ============================================================================

// ObjectStore persists raw bytes under a storage key.
//
// It is the only component in DittoStore that touches physical storage. It
// knows nothing about tenants, permissions or versions: the catalog owns that
// metadata and references bytes by key.
//
// Storage keys are slash-separated relative paths made only of the characters
// [A-Za-z0-9._/-] (see ValidateKey). Keys are stable once written: nothing in
// DittoStore renames an object in place.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Put is an exclusive create,
// so two writers racing on the same key cannot both succeed.
type ObjectStore interface {
	// Put writes the bytes read from r under key and returns the number of
	// bytes stored.
	//
	// Put never overwrites: if key already exists it returns ErrKeyExists,
	// and implementations detect the collision before consuming r when they
	// can. Intermediate directories are created as needed. On any failure no
	// partial object remains visible under key.
	//
	// Errors:
	//   - ErrInvalidKey: key fails ValidateKey
	//   - ErrKeyExists: an object is already stored under key
	//   - ErrUnavailable: backing-store I/O failure (retryable)
	//   - errors returned by r are wrapped and passed through
	Put(ctx context.Context, key string, r io.Reader) (int64, error)

	// Get returns a reader for the object stored under key. The caller must
	// close it.
	//
	// Errors: ErrObjectNotFound, ErrInvalidKey, ErrUnavailable.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object stored under key.
	//
	// Deleting a key that does not exist is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns every object in the store. It is used by orphan
	// reconciliation and is expected to be slow on large stores.
	List(ctx context.Context) ([]ObjectInfo, error)
}

// ObjectInfo describes a stored object without its content.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// MaxKeyLength bounds the length of a storage key.
const MaxKeyLength = 1024

// ValidateKey checks that key is a safe relative storage key.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key: %w", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("key longer than %d bytes: %w", MaxKeyLength, ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("key %q cannot start or end with slash: %w", key, ErrInvalidKey)
	}

	for i, r := range key {
		if !IsKeyChar(r) {
			return fmt.Errorf("invalid character %q at position %d: %w", r, i, ErrInvalidKey)
		}
	}

	for _, segment := range strings.Split(key, "/") {
		switch segment {
		case "":
			return fmt.Errorf("key %q has an empty segment: %w", key, ErrInvalidKey)
		case ".", "..":
			return fmt.Errorf("key %q has a relative segment: %w", key, ErrInvalidKey)
		}
	}

	return nil
}

// IsKeyChar reports whether r may appear in a storage key.
func IsKeyChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		r == '-' || r == '_' || r == '.' || r == '/'
}
