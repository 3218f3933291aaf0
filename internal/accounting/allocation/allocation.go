// Package allocation splits amounts across weighted lines to the cent.
package allocation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/money"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// Line is one recipient of an allocation weighted by Base.
type Line struct {
	ID   string
	Base money.Money
}

const divPrecision = 12

var cent = decimal.New(1, -money.Scale)

// Allocate distributes total across lines proportionally to their bases using
// the largest-remainder method. The returned shares always sum to
// total.Round2(). Lines whose bases are all zero share evenly.
func Allocate(total money.Money, lines []Line) (map[string]money.Money, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: allocation requires at least one line", shared.ErrValidation)
	}
	seen := make(map[string]struct{}, len(lines))
	sumBase := decimal.Zero
	for _, l := range lines {
		if l.Base.IsNegative() {
			return nil, fmt.Errorf("%w: line %q has a negative base", shared.ErrValidation, l.ID)
		}
		if _, dup := seen[l.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate line %q", shared.ErrValidation, l.ID)
		}
		seen[l.ID] = struct{}{}
		sumBase = sumBase.Add(l.Base.Decimal())
	}

	target := total.Round2().Decimal()
	type share struct {
		idx     int
		rounded decimal.Decimal
		err     decimal.Decimal
	}
	shares := make([]share, len(lines))
	allocated := decimal.Zero
	count := decimal.NewFromInt(int64(len(lines)))
	for i, l := range lines {
		var ideal decimal.Decimal
		if sumBase.IsZero() {
			ideal = target.DivRound(count, divPrecision)
		} else {
			ideal = target.Mul(l.Base.Decimal()).DivRound(sumBase, divPrecision)
		}
		rounded := ideal.Round(money.Scale)
		shares[i] = share{idx: i, rounded: rounded, err: ideal.Sub(rounded)}
		allocated = allocated.Add(rounded)
	}

	remainder := target.Sub(allocated)
	if !remainder.IsZero() {
		step := cent
		if remainder.IsNegative() {
			step = cent.Neg()
		}
		order := make([]int, len(shares))
		for i := range order {
			order[i] = i
		}
		// Under-allocated lines (largest positive error) take extra cents first;
		// over-allocated lines (most negative error) give cents back first.
		sort.SliceStable(order, func(a, b int) bool {
			ea, eb := shares[order[a]].err, shares[order[b]].err
			if step.IsPositive() {
				return ea.GreaterThan(eb)
			}
			return ea.LessThan(eb)
		})
		for i := 0; !remainder.IsZero(); i++ {
			s := &shares[order[i%len(order)]]
			s.rounded = s.rounded.Add(step)
			remainder = remainder.Sub(step)
		}
	}

	out := make(map[string]money.Money, len(lines))
	for _, s := range shares {
		out[lines[s.idx].ID] = money.FromDecimal(s.rounded)
	}
	return out, nil
}

// Scale returns amount * numerator / denominator rounded to the cent.
func Scale(amount, numerator, denominator money.Money) (money.Money, error) {
	if denominator.IsZero() {
		return money.Zero, fmt.Errorf("%w: scale by zero denominator", shared.ErrArithmetic)
	}
	d := amount.Decimal().Mul(numerator.Decimal()).DivRound(denominator.Decimal(), divPrecision)
	return money.FromDecimal(d).Round2(), nil
}

// ReturnLine is an invoice line partially returned by a credit note.
type ReturnLine struct {
	ID               string
	Quantity         decimal.Decimal
	ReturnedQuantity decimal.Decimal
	Discount         money.Money
}

// Prorate computes the discount carried back by each returned line in
// proportion to returned units, then rebalances the rounded shares so they
// sum to the discount attributable to the whole return.
func Prorate(lines []ReturnLine) (map[string]money.Money, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: proration requires at least one line", shared.ErrValidation)
	}
	total := decimal.Zero
	weights := make([]Line, 0, len(lines))
	for _, l := range lines {
		if !l.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: line %q has no quantity", shared.ErrValidation, l.ID)
		}
		if l.ReturnedQuantity.IsNegative() || l.ReturnedQuantity.GreaterThan(l.Quantity) {
			return nil, fmt.Errorf("%w: line %q returned quantity out of range", shared.ErrValidation, l.ID)
		}
		if l.Discount.IsNegative() {
			return nil, fmt.Errorf("%w: line %q has a negative discount", shared.ErrValidation, l.ID)
		}
		exact := l.Discount.Decimal().Mul(l.ReturnedQuantity).DivRound(l.Quantity, divPrecision)
		total = total.Add(exact)
		weights = append(weights, Line{ID: l.ID, Base: money.FromDecimal(exact)})
	}
	return Allocate(money.FromDecimal(total), weights)
}
