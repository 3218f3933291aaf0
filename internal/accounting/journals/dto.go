package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/money"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountID   int64
	Debit       money.Money
	Credit      money.Money
	Description string
}

// HeaderInput groups fields required to create a header.
type HeaderInput struct {
	OrgID            int64
	SourceType       SourceType
	SourceID         string
	PostingDate      time.Time
	Currency         string
	ExchangeRate     *decimal.Decimal
	Memo             string
	PostedBy         int64
	ReversesHeaderID *int64
	Lines            []LineInput
}

// Rate returns the header exchange rate, 1 when unset.
func (in HeaderInput) Rate() decimal.Decimal {
	if in.ExchangeRate == nil {
		return decimal.NewFromInt(1)
	}
	return *in.ExchangeRate
}

// Validate ensures input meets minimum criteria and returns the rounded totals.
func (in HeaderInput) Validate() (Totals, error) {
	if in.OrgID == 0 {
		return Totals{}, fmt.Errorf("accounting: org required: %w", kinds.ErrInvariant)
	}
	if in.SourceType == "" {
		return Totals{}, fmt.Errorf("accounting: source type required: %w", kinds.ErrInvariant)
	}
	if strings.TrimSpace(in.SourceID) == "" {
		return Totals{}, fmt.Errorf("accounting: source id required: %w", kinds.ErrInvariant)
	}
	return Validate(in.Lines)
}

// Validate checks the double-entry invariants over in-memory lines: every line
// is one-sided, non-negative and references an account, and the rounded debit
// total equals the rounded credit total.
func Validate(lines []LineInput) (Totals, error) {
	if len(lines) < 2 {
		return Totals{}, shared.ErrTooFewLines
	}
	var debit, credit money.Money
	for idx, line := range lines {
		lineNo := idx + 1
		if line.AccountID == 0 {
			return Totals{}, &shared.LineError{LineNo: lineNo, Reason: "missing account"}
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return Totals{}, &shared.LineError{LineNo: lineNo, Reason: "negative amount"}
		}
		d, c := line.Debit.Round2(), line.Credit.Round2()
		if !d.IsZero() && !c.IsZero() {
			return Totals{}, &shared.LineError{LineNo: lineNo, Reason: "cannot be both debit and credit"}
		}
		if d.IsZero() && c.IsZero() {
			return Totals{}, &shared.LineError{LineNo: lineNo, Reason: "zero amount"}
		}
		debit = debit.Add(d)
		credit = credit.Add(c)
	}
	if !debit.Eq(credit) {
		return Totals{}, shared.ErrUnbalanced
	}
	return Totals{Debit: debit, Credit: credit}, nil
}

// DropZeroLines removes candidate lines whose amounts round to zero.
func DropZeroLines(lines []LineInput) []LineInput {
	out := lines[:0:0]
	for _, line := range lines {
		if line.Debit.Round2().IsZero() && line.Credit.Round2().IsZero() {
			continue
		}
		out = append(out, line)
	}
	return out
}

// ReverseLines mirrors lines with debit and credit swapped.
func ReverseLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
		})
	}
	return out
}

// ToLines numbers inputs densely from 1 and rounds amounts for storage.
func ToLines(headerID int64, lines []LineInput) []Line {
	out := make([]Line, 0, len(lines))
	for idx, line := range lines {
		out = append(out, Line{
			HeaderID:    headerID,
			LineNo:      idx + 1,
			AccountID:   line.AccountID,
			Debit:       line.Debit.Round2(),
			Credit:      line.Credit.Round2(),
			Description: line.Description,
		})
	}
	return out
}

// ReversalSourceID derives the source id of the header reversing sourceID.
func ReversalSourceID(sourceID string) string {
	return sourceID + ReversalSuffix
}
