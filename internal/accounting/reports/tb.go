package reports

import (
	"sort"
	"strings"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/money"
)

// AccountBalance models a general ledger account with aggregated balances.
// Amounts are debit-positive.
type AccountBalance struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounts.AccountType
	Subtype   accounts.Subtype
	Opening   money.Money
	Debit     money.Money
	Credit    money.Money
}

// Closing computes the closing balance for the account.
func (a AccountBalance) Closing() money.Money {
	return a.Opening.Add(a.Debit).Sub(a.Credit)
}

// Movement is the net debit minus credit within the period.
func (a AccountBalance) Movement() money.Money {
	return a.Debit.Sub(a.Credit)
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	AccountID int64       `json:"account_id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Opening   money.Money `json:"opening"`
	Debit     money.Money `json:"debit"`
	Credit    money.Money `json:"credit"`
	Closing   money.Money `json:"closing"`
}

// TrialBalanceGroup aggregates accounts for presentation.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Opening  money.Money           `json:"opening"`
	Debit    money.Money           `json:"debit"`
	Credit   money.Money           `json:"credit"`
	Closing  money.Money           `json:"closing"`
}

// TrialBalance is the grouped per-account report.
type TrialBalance struct {
	Groups       []TrialBalanceGroup `json:"groups"`
	TotalDebit   money.Money         `json:"total_debit"`
	TotalCredit  money.Money         `json:"total_credit"`
	TotalOpening money.Money         `json:"total_opening"`
	TotalClosing money.Money         `json:"total_closing"`
	Balanced     bool                `json:"balanced"`
}

// BuildTrialBalance converts account balances into grouped trial balance data.
// Accounts without opening balance or activity are omitted.
func BuildTrialBalance(balances []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range balances {
		if acc.Opening.Round2().IsZero() && acc.Debit.Round2().IsZero() && acc.Credit.Round2().IsZero() {
			continue
		}
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceAccount{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Type:      string(acc.Type),
			Opening:   acc.Opening.Round2(),
			Debit:     acc.Debit.Round2(),
			Credit:    acc.Credit.Round2(),
			Closing:   acc.Closing().Round2(),
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Opening = grp.Opening.Add(row.Opening)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
		grp.Closing = grp.Closing.Add(row.Closing)
	}

	sort.Strings(keys)
	result := TrialBalance{}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalOpening = result.TotalOpening.Add(grp.Opening)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
		result.TotalClosing = result.TotalClosing.Add(grp.Closing)
	}
	result.Balanced = result.TotalDebit.Eq(result.TotalCredit) && result.TotalOpening.IsZero() && result.TotalClosing.IsZero()
	return result
}
