package reports

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/money"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

func sumMovements(ms []Movement) (money.Money, money.Money) {
	var dr, cr money.Money
	for _, mv := range ms {
		dr = dr.Add(mv.Debit)
		cr = cr.Add(mv.Credit)
	}
	return dr, cr
}

func TestSynthesizeCashBasisScalesInvoice(t *testing.T) {
	alloc := CashAllocation{
		Amount:      m("55"),
		TargetTotal: m("110"),
		TargetLines: []journals.Line{
			{LineNo: 1, AccountID: 10, Debit: m("110")},
			{LineNo: 2, AccountID: 40, Credit: m("100")},
			{LineNo: 3, AccountID: 21, Credit: m("10")},
		},
	}
	got, err := SynthesizeCashBasis([]CashAllocation{alloc})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, int64(10), got[0].AccountID)
	require.Equal(t, "55.00", got[0].Debit.String())
	require.Equal(t, "50.00", got[1].Credit.String())
	require.Equal(t, "5.00", got[2].Credit.String())
}

func TestSynthesizeCashBasisStaysBalancedToTheCent(t *testing.T) {
	alloc := CashAllocation{
		Amount:      m("10.01"),
		TargetTotal: m("30.03"),
		TargetLines: []journals.Line{
			{LineNo: 1, AccountID: 10, Debit: m("30.03")},
			{LineNo: 2, AccountID: 40, Credit: m("10.01")},
			{LineNo: 3, AccountID: 41, Credit: m("10.01")},
			{LineNo: 4, AccountID: 42, Credit: m("10.01")},
		},
	}
	got, err := SynthesizeCashBasis([]CashAllocation{alloc})
	require.NoError(t, err)
	dr, cr := sumMovements(got)
	require.Equal(t, "10.01", dr.String())
	require.Equal(t, "10.01", cr.String())

	counts := map[string]int{}
	for _, mv := range got[1:] {
		counts[mv.Credit.String()]++
	}
	require.Equal(t, map[string]int{"3.34": 2, "3.33": 1}, counts)
}

func TestSynthesizeCashBasisVoidedPaymentMirrorsOnVoidDate(t *testing.T) {
	lines := []journals.Line{
		{LineNo: 1, AccountID: 10, Debit: m("110")},
		{LineNo: 2, AccountID: 40, Credit: m("100")},
		{LineNo: 3, AccountID: 21, Credit: m("10")},
	}
	original := CashAllocation{AllocationID: 1, Amount: m("55"), TargetTotal: m("110"), TargetLines: lines}
	reversal := original
	reversal.Reversal = true

	april, err := SynthesizeCashBasis([]CashAllocation{original})
	require.NoError(t, err)
	require.Equal(t, "50.00", april[1].Credit.String())

	may, err := SynthesizeCashBasis([]CashAllocation{reversal})
	require.NoError(t, err)
	require.Len(t, may, 3)
	require.Equal(t, "55.00", may[0].Credit.String())
	require.True(t, may[0].Debit.IsZero())
	require.Equal(t, "50.00", may[1].Debit.String())
	require.Equal(t, "5.00", may[2].Debit.String())

	both, err := SynthesizeCashBasis([]CashAllocation{original, reversal})
	require.NoError(t, err)
	net := map[int64]money.Money{}
	for _, mv := range both {
		net[mv.AccountID] = net[mv.AccountID].Add(mv.Debit).Sub(mv.Credit)
	}
	for account, amount := range net {
		require.True(t, amount.IsZero(), "account %d nets to %s", account, amount)
	}
}

func TestSynthesizeCashBasisSkipsZeroTotals(t *testing.T) {
	got, err := SynthesizeCashBasis([]CashAllocation{{Amount: m("5"), TargetTotal: m("0")}})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestApplyMovementsRejectsUnknownAccount(t *testing.T) {
	base := []AccountBalance{{AccountID: 1, Debit: m("1")}}
	out, err := ApplyMovements(base, []Movement{{AccountID: 1, Debit: m("2")}})
	require.NoError(t, err)
	require.Equal(t, "3.00", out[0].Debit.String())
	require.Equal(t, "1.00", base[0].Debit.String())

	_, err = ApplyMovements(base, []Movement{{AccountID: 2, Credit: m("1")}})
	require.ErrorIs(t, err, kinds.ErrInvariant)
}
