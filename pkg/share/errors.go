package share

import (
	"errors"
	"fmt"
)

// Reason explains why a grant could not be used. Reasons describe the
// grant's own validity and are never reported as ErrUnauthorized.
type Reason string

const (
	ReasonNotFound     Reason = "not_found"
	ReasonExpired      Reason = "expired"
	ReasonRevoked      Reason = "revoked"
	ReasonCodeRequired Reason = "code_required"
	ReasonCodeMismatch Reason = "code_mismatch"
	ReasonRateLimited  Reason = "rate_limited"
)

// ErrDenied matches every *DenialError with errors.Is.
var ErrDenied = errors.New("share access denied")

// ErrInvalidGrant indicates a malformed share request.
var ErrInvalidGrant = errors.New("invalid share request")

// DenialError is returned by Resolve when a grant cannot be used.
type DenialError struct {
	Reason  Reason
	GrantID string
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("share access denied: %s", e.Reason)
}

// Is makes errors.Is(err, ErrDenied) true for every denial.
func (e *DenialError) Is(target error) bool {
	return target == ErrDenied
}

// DenialReason extracts the reason from err, if it is a denial.
func DenialReason(err error) (Reason, bool) {
	var de *DenialError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return "", false
}

func deny(reason Reason, grantID string) *DenialError {
	return &DenialError{Reason: reason, GrantID: grantID}
}
