package reports

import (
	"sort"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/money"
)

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
type BalanceSheetAccount struct {
	AccountID int64       `json:"account_id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Balance   money.Money `json:"balance"`
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    money.Money           `json:"total"`
}

// BalanceSheet is the structured response for the balance sheet report.
// Liabilities and equity are shown credit-positive.
type BalanceSheet struct {
	Assets                    BalanceSheetSection `json:"assets"`
	Liabilities               BalanceSheetSection `json:"liabilities"`
	Equity                    BalanceSheetSection `json:"equity"`
	CurrentYearEarnings       money.Money         `json:"current_year_earnings"`
	RetainedEarnings          money.Money         `json:"retained_earnings"`
	TotalLiabilitiesAndEquity money.Money         `json:"total_liabilities_and_equity"`
	Balanced                  bool                `json:"balanced"`
}

// BuildBalanceSheet aggregates cumulative balances into assets, liabilities
// and equity. Revenue and expense accounts are not listed; their effect
// enters equity through currentEarnings (fiscal year to date) and
// retainedEarnings (prior years).
func BuildBalanceSheet(balances []AccountBalance, currentEarnings, retainedEarnings money.Money) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets"}
	liabilities := BalanceSheetSection{Label: "Liabilities"}
	equity := BalanceSheetSection{Label: "Equity"}

	for _, acc := range balances {
		balance := acc.Closing().Round2()
		if balance.IsZero() {
			continue
		}
		row := BalanceSheetAccount{AccountID: acc.AccountID, Code: acc.Code, Name: acc.Name, Balance: balance}
		switch acc.Type {
		case accounts.AccountTypeAsset:
			assets.Accounts = append(assets.Accounts, row)
			assets.Total = assets.Total.Add(row.Balance)
		case accounts.AccountTypeLiability:
			row.Balance = balance.Neg()
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total = liabilities.Total.Add(row.Balance)
		case accounts.AccountTypeEquity:
			row.Balance = balance.Neg()
			equity.Accounts = append(equity.Accounts, row)
			equity.Total = equity.Total.Add(row.Balance)
		}
	}

	sort.Slice(assets.Accounts, func(i, j int) bool { return assets.Accounts[i].Code < assets.Accounts[j].Code })
	sort.Slice(liabilities.Accounts, func(i, j int) bool { return liabilities.Accounts[i].Code < liabilities.Accounts[j].Code })
	sort.Slice(equity.Accounts, func(i, j int) bool { return equity.Accounts[i].Code < equity.Accounts[j].Code })

	currentEarnings = currentEarnings.Round2()
	retainedEarnings = retainedEarnings.Round2()
	equity.Total = equity.Total.Add(currentEarnings).Add(retainedEarnings)
	total := liabilities.Total.Add(equity.Total)
	return BalanceSheet{
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		CurrentYearEarnings:       currentEarnings,
		RetainedEarnings:          retainedEarnings,
		TotalLiabilitiesAndEquity: total,
		Balanced:                  assets.Total.Eq(total),
	}
}
