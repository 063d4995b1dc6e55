package files

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittostore/pkg/access"
	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/marmos91/dittostore/pkg/layout"
	"github.com/marmos91/dittostore/pkg/store/object"
)

// Error taxonomy of the file service. Every error returned by Service
// matches at most one of these with errors.Is (ErrTooLarge also matches
// ErrValidation). Share denials are reported separately as
// *share.DenialError.
var (
	// ErrValidation indicates a bad request, rejected before any I/O.
	ErrValidation = errors.New("validation failed")

	// ErrTooLarge indicates the upload exceeded the size ceiling. No bytes
	// are left behind.
	ErrTooLarge = fmt.Errorf("%w: file exceeds the upload size limit", ErrValidation)

	// ErrUnauthorized indicates the actor lacks the right for the action.
	// Nothing was read from or written to storage.
	ErrUnauthorized = access.ErrUnauthorized

	// ErrNotFound indicates the object does not exist for the tenant.
	ErrNotFound = errors.New("file not found")

	// ErrConflict indicates the targeted version is no longer the latest.
	ErrConflict = errors.New("version conflict")

	// ErrStorageUnavailable indicates the object store failed. It is the
	// only retryable error.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// IsRetryable reports whether the caller may retry the operation with
// backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// validation wraps err as a validation failure.
func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// fromLayout classifies a key resolution failure.
func fromLayout(err error) error {
	switch {
	case errors.Is(err, layout.ErrPathTooLong),
		errors.Is(err, layout.ErrInvalidFilename),
		errors.Is(err, layout.ErrInvalidRequest):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return fmt.Errorf("resolve storage key: %w", err)
	}
}

// fromStore classifies an object store failure.
func fromStore(op string, err error) error {
	switch {
	case errors.Is(err, ErrTooLarge):
		return ErrTooLarge
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, object.ErrUnavailable):
		return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
	case errors.Is(err, object.ErrObjectNotFound):
		return fmt.Errorf("%w: %s: stored bytes are missing: %w", ErrNotFound, op, err)
	case errors.Is(err, object.ErrInvalidKey):
		return fmt.Errorf("%w: %s: %w", ErrValidation, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// fromCatalog classifies a catalog failure.
func fromCatalog(op string, err error) error {
	code, ok := catalog.CodeOf(err)
	if !ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch code {
	case catalog.ErrNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case catalog.ErrNotLatest:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case catalog.ErrInvalidArgument:
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// outcome labels err for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStorageUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
