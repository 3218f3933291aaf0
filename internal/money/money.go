// Package money provides the fixed-precision amount type used across the ledger.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/shared"
)

// Scale is the number of minor-unit places persisted for every amount.
const Scale = 2

// ErrArithmetic reports invalid numeric input or an undefined operation.
var ErrArithmetic = fmt.Errorf("money: %w", shared.ErrArithmetic)

// Money is an exact decimal amount. The zero value is 0.
type Money struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Money{}

// New converts numeric or decimal-string input into Money.
func New(v any) (Money, error) {
	switch val := v.(type) {
	case Money:
		return val, nil
	case *Money:
		if val == nil {
			return Zero, nil
		}
		return *val, nil
	case decimal.Decimal:
		return Money{d: val}, nil
	case int:
		return Money{d: decimal.NewFromInt(int64(val))}, nil
	case int32:
		return Money{d: decimal.NewFromInt32(val)}, nil
	case int64:
		return Money{d: decimal.NewFromInt(val)}, nil
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case string:
		return Parse(val)
	case []byte:
		return Parse(string(val))
	case nil:
		return Zero, nil
	default:
		return Zero, fmt.Errorf("%w: unsupported input %T", ErrArithmetic, v)
	}
}

// MustNew is New for literals known to be valid.
func MustNew(v any) Money {
	m, err := New(v)
	if err != nil {
		panic(err)
	}
	return m
}

// Parse reads a decimal string such as "10.01" or "-3".
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q is not a decimal", ErrArithmetic, s)
	}
	return Money{d: d}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromDecimal wraps an existing decimal.
func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d}
}

// FromInt returns a whole amount.
func FromInt(v int64) Money {
	return Money{d: decimal.NewFromInt(v)}
}

// FromCents returns an amount expressed in minor units.
func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -Scale)}
}

func fromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Zero, fmt.Errorf("%w: non-finite input", ErrArithmetic)
	}
	return Money{d: decimal.NewFromFloat(f)}, nil
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Mul(o Money) Money { return Money{d: m.d.Mul(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }
func (m Money) Abs() Money        { return Money{d: m.d.Abs()} }

// MulDecimal scales the amount by a plain factor such as a rate.
func (m Money) MulDecimal(f decimal.Decimal) Money { return Money{d: m.d.Mul(f)} }

// Div divides with 16 digits of intermediate precision.
func (m Money) Div(o Money) (Money, error) {
	if o.d.IsZero() {
		return Zero, fmt.Errorf("%w: division by zero", ErrArithmetic)
	}
	return Money{d: m.d.Div(o.d)}, nil
}

// Round2 rounds half away from zero to two places. Round2(Round2(x)) == Round2(x).
func (m Money) Round2() Money {
	return Money{d: m.d.Round(Scale)}
}

func (m Money) Eq(o Money) bool  { return m.d.Equal(o.d) }
func (m Money) Gt(o Money) bool  { return m.d.GreaterThan(o.d) }
func (m Money) Gte(o Money) bool { return m.d.GreaterThanOrEqual(o.d) }
func (m Money) Lt(o Money) bool  { return m.d.LessThan(o.d) }
func (m Money) Lte(o Money) bool { return m.d.LessThanOrEqual(o.d) }

// Cmp returns -1, 0 or 1.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) IsZero() bool     { return m.d.IsZero() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }
func (m Money) IsPositive() bool { return m.d.IsPositive() }

// Decimal exposes the underlying value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// Cents returns the rounded amount in minor units.
func (m Money) Cents() int64 {
	return m.d.Round(Scale).Shift(Scale).IntPart()
}

// String renders the rounded value with exactly two places.
func (m Money) String() string {
	return m.d.StringFixed(Scale)
}

// Min returns the smaller amount.
func Min(a, b Money) Money {
	if a.Lte(b) {
		return a
	}
	return b
}

// Max returns the larger amount.
func Max(a, b Money) Money {
	if a.Gte(b) {
		return a
	}
	return b
}

// Sum adds all amounts.
func Sum(values ...Money) Money {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MarshalJSON encodes the amount as a fixed two-place string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted strings and bare numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "null" {
		*m = Zero
		return nil
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores the amount rounded to the persisted scale.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan reads numeric columns.
func (m *Money) Scan(src any) error {
	if src == nil {
		*m = Zero
		return nil
	}
	switch v := src.(type) {
	case string, []byte, float64, int64:
		parsed, err := New(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	default:
		var d decimal.Decimal
		if err := d.Scan(src); err != nil {
			return errors.Join(ErrArithmetic, err)
		}
		*m = Money{d: d}
		return nil
	}
}
