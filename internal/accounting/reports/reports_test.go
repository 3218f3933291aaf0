package reports

import (
	"testing"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/money"
	_ "github.com/odyssey-erp/ledger/testing"
)

func m(s string) money.Money { return money.MustParse(s) }

func TestBuildTrialBalance(t *testing.T) {
	balances := []AccountBalance{
		{AccountID: 1, Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset, Opening: m("1000"), Debit: m("200"), Credit: m("150")},
		{AccountID: 2, Code: "1001", Name: "Bank", Type: accounts.AccountTypeAsset, Opening: m("500"), Debit: m("100"), Credit: m("50")},
		{AccountID: 3, Code: "2000", Name: "Accounts Payable", Type: accounts.AccountTypeLiability, Opening: m("-1500"), Debit: m("10"), Credit: m("110")},
		{AccountID: 4, Code: "3000", Name: "Dormant", Type: accounts.AccountTypeEquity},
	}

	tb := BuildTrialBalance(balances)
	if len(tb.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(tb.Groups))
	}
	if tb.TotalDebit.String() != "310.00" {
		t.Fatalf("unexpected total debit: %s", tb.TotalDebit)
	}
	if tb.TotalCredit.String() != "310.00" {
		t.Fatalf("unexpected total credit: %s", tb.TotalCredit)
	}
	if !tb.TotalOpening.IsZero() || !tb.TotalClosing.IsZero() {
		t.Fatalf("expected zero opening and closing totals, got %s / %s", tb.TotalOpening, tb.TotalClosing)
	}
	if !tb.Balanced {
		t.Fatalf("expected balanced trial balance")
	}
	if tb.Groups[0].Accounts[0].Closing.String() != "1050.00" {
		t.Fatalf("unexpected closing for cash: %s", tb.Groups[0].Accounts[0].Closing)
	}
}

func TestBuildProfitAndLoss(t *testing.T) {
	balances := []AccountBalance{
		{Code: "4000", Name: "Sales", Type: accounts.AccountTypeRevenue, Credit: m("1200")},
		{Code: "5000", Name: "COGS", Type: accounts.AccountTypeExpense, Debit: m("300")},
		{Code: "5100", Name: "Marketing", Type: accounts.AccountTypeExpense, Debit: m("200")},
		{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset, Debit: m("999")},
	}

	pl := BuildProfitAndLoss(balances)
	if pl.Revenue.Total.String() != "1200.00" {
		t.Fatalf("expected revenue total 1200 got %s", pl.Revenue.Total)
	}
	if pl.Expense.Total.String() != "500.00" {
		t.Fatalf("expected expense total 500 got %s", pl.Expense.Total)
	}
	if pl.NetIncome.String() != "700.00" {
		t.Fatalf("expected net income 700 got %s", pl.NetIncome)
	}
}

func TestBuildBalanceSheet(t *testing.T) {
	balances := []AccountBalance{
		{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset, Debit: m("1100"), Credit: m("20")},
		{Code: "2000", Name: "AP", Type: accounts.AccountTypeLiability, Debit: m("10"), Credit: m("40")},
		{Code: "3000", Name: "Capital", Type: accounts.AccountTypeEquity, Credit: m("500")},
		{Code: "4000", Name: "Sales", Type: accounts.AccountTypeRevenue, Credit: m("600")},
		{Code: "5000", Name: "Rent", Type: accounts.AccountTypeExpense, Debit: m("50")},
	}

	bs := BuildBalanceSheet(balances, m("400"), m("150"))
	if bs.Assets.Total.String() != "1080.00" {
		t.Fatalf("expected assets 1080 got %s", bs.Assets.Total)
	}
	if bs.Liabilities.Total.String() != "30.00" {
		t.Fatalf("expected liabilities 30 got %s", bs.Liabilities.Total)
	}
	if bs.Equity.Total.String() != "1050.00" {
		t.Fatalf("expected equity 1050 got %s", bs.Equity.Total)
	}
	if bs.TotalLiabilitiesAndEquity.String() != "1080.00" {
		t.Fatalf("expected total L+E 1080 got %s", bs.TotalLiabilitiesAndEquity)
	}
	if !bs.Balanced {
		t.Fatalf("expected balanced sheet")
	}
}

func TestBuildVATSummary(t *testing.T) {
	balances := []AccountBalance{
		{AccountID: 21, Debit: m("5"), Credit: m("120")},
		{AccountID: 11, Debit: m("40")},
		{AccountID: 40, Credit: m("1000")},
	}
	vat := BuildVATSummary(balances, 21, 11)
	if vat.OutputVAT.String() != "115.00" || vat.InputVAT.String() != "40.00" || vat.NetPayable.String() != "75.00" {
		t.Fatalf("unexpected vat summary %+v", vat)
	}
}
