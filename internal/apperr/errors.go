// Package apperr defines the error kinds shared by every engine.
//
// Engines wrap these sentinels with context and callers classify them with
// errors.Is. A NotFound never says whether the row exists for another user.
package apperr

import "errors"

var (
	// ErrNotFound is returned when an id does not resolve for the calling user.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation is returned for requests that are well formed but
	// not allowed in the current state (cycles, restoring a live task).
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrValidation is returned for enum, range or shape violations.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a storage uniqueness or check constraint
	// rejects a write.
	ErrConflict = errors.New("conflict")
)

// Kind returns the sentinel err wraps, or nil when it wraps none of them.
func Kind(err error) error {
	for _, kind := range []error{ErrNotFound, ErrInvalidOperation, ErrValidation, ErrConflict} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
