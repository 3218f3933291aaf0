package shared

import (
	"errors"
	"fmt"
	"time"

	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("accounting: journal lines must balance: %w", kinds.ErrInvariant)
	// ErrInvalidLine indicates a line that is not strictly one-sided and non-negative.
	ErrInvalidLine = fmt.Errorf("accounting: invalid journal line: %w", kinds.ErrInvariant)
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("accounting: journal requires at least two lines: %w", kinds.ErrInvariant)
	// ErrSourceAlreadyLinked indicates another header already owns the source.
	ErrSourceAlreadyLinked = fmt.Errorf("accounting: source already linked: %w", kinds.ErrConflict)
	// ErrHeaderNotFound indicates missing GL header.
	ErrHeaderNotFound = fmt.Errorf("accounting: journal entry not found: %w", kinds.ErrNotFound)
	// ErrDocumentNotFound indicates missing source document.
	ErrDocumentNotFound = fmt.Errorf("accounting: document not found: %w", kinds.ErrNotFound)
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = fmt.Errorf("accounting: invalid status transition: %w", kinds.ErrConflict)
	// ErrDocumentHasPayments indicates a void blocked by applied payments.
	ErrDocumentHasPayments = fmt.Errorf("accounting: document has applied payments: %w", kinds.ErrConflict)
	// ErrDuplicateNumber indicates the assigned document number is taken.
	ErrDuplicateNumber = fmt.Errorf("accounting: document number already used: %w", kinds.ErrConflict)
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = fmt.Errorf("accounting: account mapping not found: %w", kinds.ErrValidation)
	// ErrAccountNotFound indicates an account id outside the org chart.
	ErrAccountNotFound = fmt.Errorf("accounting: account not found: %w", kinds.ErrValidation)
	// ErrAccountInactive indicates posting to a deactivated account.
	ErrAccountInactive = fmt.Errorf("accounting: account inactive: %w", kinds.ErrValidation)
	// ErrAccountType indicates an account of the wrong type for its role.
	ErrAccountType = fmt.Errorf("accounting: account type not allowed: %w", kinds.ErrValidation)
	// ErrOverAllocated indicates allocations beyond the target's outstanding total.
	ErrOverAllocated = fmt.Errorf("accounting: allocation exceeds outstanding amount: %w", kinds.ErrValidation)
	// ErrInvalidAllocation indicates an allocation target of the wrong type, party or status.
	ErrInvalidAllocation = fmt.Errorf("accounting: invalid allocation target: %w", kinds.ErrValidation)
	// ErrInvalidDocument indicates a document that cannot produce postings.
	ErrInvalidDocument = fmt.Errorf("accounting: invalid document: %w", kinds.ErrValidation)
)

// PeriodLockedError reports a write rejected by the organization lock date.
type PeriodLockedError struct {
	Action       string
	LockDate     time.Time
	DocumentDate time.Time
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("accounting: %s blocked: document date %s is on or before lock date %s",
		e.Action, e.DocumentDate.Format(time.DateOnly), e.LockDate.Format(time.DateOnly))
}

// Unwrap exposes the kind.
func (e *PeriodLockedError) Unwrap() error { return kinds.ErrPeriodLocked }

// LineError pinpoints the offending journal line.
type LineError struct {
	LineNo int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("accounting: line %d: %s", e.LineNo, e.Reason)
}

// Unwrap exposes ErrInvalidLine.
func (e *LineError) Unwrap() error { return ErrInvalidLine }

// AsPeriodLocked unwraps a PeriodLockedError.
func AsPeriodLocked(err error) (*PeriodLockedError, bool) {
	var locked *PeriodLockedError
	if errors.As(err, &locked) {
		return locked, true
	}
	return nil, false
}
