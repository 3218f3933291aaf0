package reports

import (
	"fmt"
	"strconv"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/allocation"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/money"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

// CashAllocation is a payment allocation together with the GL lines of the
// invoice or bill it settles. Reversal marks the mirror entry recognised on the
// day the payment was voided.
type CashAllocation struct {
	AllocationID     int64
	PaymentID        int64
	PaymentDate      time.Time
	Reversal         bool
	Amount           money.Money
	TargetDocumentID int64
	TargetTotal      money.Money
	TargetLines      []journals.Line
}

// Movement is a synthesized debit or credit on one account.
type Movement struct {
	AccountID int64
	Debit     money.Money
	Credit    money.Money
}

// SynthesizeCashBasis recognises the part of each settled document that its
// payment allocations cover. Reversal allocations produce the mirrored rows. Both sides of the target's GL lines are scaled by
// amount/targetTotal, each side split with the largest-remainder method so the
// synthesized rows stay balanced to the cent.
func SynthesizeCashBasis(allocs []CashAllocation) ([]Movement, error) {
	var out []Movement
	for _, a := range allocs {
		if a.TargetTotal.Round2().IsZero() || a.Amount.Round2().IsZero() {
			continue
		}
		var debits, credits []allocation.Line
		var debitTotal, creditTotal money.Money
		for _, l := range a.TargetLines {
			id := strconv.Itoa(l.LineNo)
			if l.Debit.IsPositive() {
				debits = append(debits, allocation.Line{ID: id, Base: l.Debit})
				debitTotal = debitTotal.Add(l.Debit)
			}
			if l.Credit.IsPositive() {
				credits = append(credits, allocation.Line{ID: id, Base: l.Credit})
				creditTotal = creditTotal.Add(l.Credit)
			}
		}
		if len(debits) == 0 || len(credits) == 0 {
			return nil, fmt.Errorf("%w: document %d has no recognisable lines", kinds.ErrInvariant, a.TargetDocumentID)
		}
		debitShare, err := allocation.Scale(debitTotal, a.Amount, a.TargetTotal)
		if err != nil {
			return nil, err
		}
		creditShare, err := allocation.Scale(creditTotal, a.Amount, a.TargetTotal)
		if err != nil {
			return nil, err
		}
		if !debitShare.Eq(creditShare) {
			return nil, fmt.Errorf("%w: document %d lines do not balance", kinds.ErrInvariant, a.TargetDocumentID)
		}
		dr, err := allocation.Allocate(debitShare, debits)
		if err != nil {
			return nil, err
		}
		cr, err := allocation.Allocate(creditShare, credits)
		if err != nil {
			return nil, err
		}
		for _, l := range a.TargetLines {
			id := strconv.Itoa(l.LineNo)
			if l.Debit.IsPositive() {
				mv := Movement{AccountID: l.AccountID, Debit: dr[id]}
				if a.Reversal {
					mv.Debit, mv.Credit = mv.Credit, mv.Debit
				}
				out = append(out, mv)
			}
			if l.Credit.IsPositive() {
				mv := Movement{AccountID: l.AccountID, Credit: cr[id]}
				if a.Reversal {
					mv.Debit, mv.Credit = mv.Credit, mv.Debit
				}
				out = append(out, mv)
			}
		}
	}
	return out, nil
}

// ApplyMovements adds movements to the matching balances. Movements on
// accounts missing from balances are an invariant violation.
func ApplyMovements(balances []AccountBalance, movements []Movement) ([]AccountBalance, error) {
	out := append([]AccountBalance(nil), balances...)
	index := make(map[int64]int, len(out))
	for i, b := range out {
		index[b.AccountID] = i
	}
	for _, m := range movements {
		i, ok := index[m.AccountID]
		if !ok {
			return nil, fmt.Errorf("%w: movement on unknown account %d", kinds.ErrInvariant, m.AccountID)
		}
		out[i].Debit = out[i].Debit.Add(m.Debit)
		out[i].Credit = out[i].Credit.Add(m.Credit)
	}
	return out, nil
}
