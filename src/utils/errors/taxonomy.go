package errors

import (
	"errors"
)

// Pipeline error taxonomy. Stage-local errors carrying a documented
// fallback or absence semantics are recovered in place; only
// ErrInvariantViolation and store unavailability surface to the caller.
var (
	// ErrDataInsufficient: not enough history or feature rows for a stage.
	ErrDataInsufficient = errors.New("insufficient data")

	// ErrNumericDivergence: a model fit failed or produced non-finite values.
	ErrNumericDivergence = errors.New("numeric divergence")

	// ErrStoreConflict: another invocation holds the per-date lock.
	ErrStoreConflict = errors.New("store conflict")

	// ErrInvariantViolation: cross-date mixing, missing run reference, or a
	// duplicate terminal write. Fatal to the invocation.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Is reports whether any error in err's chain matches target.
// Re-exported so callers don't need a second errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
