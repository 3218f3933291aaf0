package shared

import "errors"

// Error kinds. Domain errors wrap one of these with %w so transports can map
// them without knowing every concrete error.
var (
	// ErrValidation indicates malformed input or a rejected business rule.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a state or uniqueness conflict.
	ErrConflict = errors.New("conflict")
	// ErrPeriodLocked indicates the document date falls on or before the lock date.
	ErrPeriodLocked = errors.New("period locked")
	// ErrInvariant indicates the ledger would be left inconsistent.
	ErrInvariant = errors.New("ledger invariant violated")
	// ErrArithmetic indicates invalid numeric input or an undefined operation.
	ErrArithmetic = errors.New("arithmetic error")
)

// Kind returns the taxonomy sentinel matched by err, or nil.
func Kind(err error) error {
	for _, kind := range []error{ErrPeriodLocked, ErrInvariant, ErrArithmetic, ErrNotFound, ErrConflict, ErrValidation} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
