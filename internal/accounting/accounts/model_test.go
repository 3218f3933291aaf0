package accounts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

func TestRuleCheck(t *testing.T) {
	bank := Account{ID: 1, Code: "1000", Type: AccountTypeAsset, Subtype: SubtypeBank, IsActive: true}
	require.NoError(t, RuleBank.Check(bank))

	bank.IsActive = false
	require.ErrorIs(t, RuleBank.Check(bank), shared.ErrAccountInactive)

	revenue := Account{ID: 2, Code: "4000", Type: AccountTypeRevenue, IsActive: true}
	require.ErrorIs(t, RuleBank.Check(revenue), shared.ErrAccountType)
	require.NoError(t, RuleRevenue.Check(revenue))

	ar := Account{ID: 3, Code: "1100", Type: AccountTypeAsset, Subtype: SubtypeBank, IsActive: true}
	require.ErrorIs(t, RuleReceivable.Check(ar), shared.ErrAccountType)
}

func TestNormalDebit(t *testing.T) {
	require.True(t, AccountTypeAsset.NormalDebit())
	require.True(t, AccountTypeExpense.NormalDebit())
	require.False(t, AccountTypeRevenue.NormalDebit())
	require.False(t, AccountTypeEquity.NormalDebit())
}
