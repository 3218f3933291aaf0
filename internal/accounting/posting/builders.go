package posting

import (
	"fmt"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/money"
)

// ControlAccounts are the mapped accounts a posting may touch besides the
// document's own line accounts.
type ControlAccounts struct {
	Receivable int64
	Payable    int64
	OutputTax  int64
	InputTax   int64
	Bank       int64
}

// accountRef is one account reference of a document and the rule it must meet.
type accountRef struct {
	id   int64
	rule accounts.Rule
}

// requiredMappings lists the mapping keys the document type needs.
func requiredMappings(t DocumentType) []string {
	switch t {
	case TypeInvoice, TypeCreditNote:
		return []string{mappings.KeyReceivable, mappings.KeyOutputTax}
	case TypeBill:
		return []string{mappings.KeyPayable, mappings.KeyInputTax}
	case TypePaymentReceived:
		return []string{mappings.KeyReceivable}
	case TypeVendorPayment:
		return []string{mappings.KeyPayable}
	}
	return nil
}

// accountRefs lists every account the document's posting references with the
// rule that account must satisfy at post time.
func accountRefs(doc Document, ctl ControlAccounts) []accountRef {
	var refs []accountRef
	switch doc.Type {
	case TypeInvoice, TypeCreditNote:
		refs = append(refs, accountRef{ctl.Receivable, accounts.RuleReceivable})
		if doc.TaxTotal.Round2().IsPositive() || hasTax(doc.Lines) {
			refs = append(refs, accountRef{ctl.OutputTax, accounts.RuleOutputTax})
		}
		for _, l := range doc.Lines {
			refs = append(refs, accountRef{l.AccountID, accounts.RuleRevenue})
		}
	case TypeBill:
		refs = append(refs, accountRef{ctl.Payable, accounts.RulePayable})
		if doc.TaxTotal.Round2().IsPositive() || hasTax(doc.Lines) {
			refs = append(refs, accountRef{ctl.InputTax, accounts.RuleInputTax})
		}
		for _, l := range doc.Lines {
			refs = append(refs, accountRef{l.AccountID, accounts.RuleExpense})
		}
	case TypePaymentReceived:
		refs = append(refs, accountRef{ctl.Receivable, accounts.RuleReceivable}, accountRef{ctl.Bank, accounts.RuleBank})
	case TypeVendorPayment:
		refs = append(refs, accountRef{ctl.Payable, accounts.RulePayable}, accountRef{ctl.Bank, accounts.RuleBank})
	}
	return refs
}

func hasTax(lines []DocumentLine) bool {
	for _, l := range lines {
		if !l.TaxAmount.Round2().IsZero() {
			return true
		}
	}
	return false
}

// checkTotals rejects documents whose header totals disagree with their lines.
func checkTotals(doc Document) error {
	total := doc.Total.Round2()
	if !total.IsPositive() {
		return fmt.Errorf("%w: %s total must be positive", shared.ErrInvalidDocument, doc.Type.Label())
	}
	if doc.Type.IsPayment() {
		if doc.CashAccountID == nil {
			return fmt.Errorf("%w: payment requires a bank account", shared.ErrInvalidDocument)
		}
		return nil
	}
	if len(doc.Lines) == 0 {
		return fmt.Errorf("%w: %s has no lines", shared.ErrInvalidDocument, doc.Type.Label())
	}
	var net, tax money.Money
	for _, l := range doc.Lines {
		if l.NetAmount.IsNegative() || l.TaxAmount.IsNegative() {
			return fmt.Errorf("%w: line %d has a negative amount", shared.ErrInvalidDocument, l.LineNo)
		}
		net = net.Add(l.NetAmount.Round2())
		tax = tax.Add(l.TaxAmount.Round2())
	}
	if !net.Add(tax).Eq(total) {
		return fmt.Errorf("%w: lines sum to %s but total is %s", shared.ErrInvalidDocument, net.Add(tax), total)
	}
	return nil
}

// BuildLines turns a document into candidate GL lines. Lines that round to
// zero are dropped; the result is not yet validated.
func BuildLines(doc Document, ctl ControlAccounts) ([]journals.LineInput, error) {
	if err := checkTotals(doc); err != nil {
		return nil, err
	}
	total := doc.Total.Round2()
	ref := doc.Number
	var lines []journals.LineInput
	debit := func(account int64, amount money.Money, desc string) {
		lines = append(lines, journals.LineInput{AccountID: account, Debit: amount.Round2(), Description: desc})
	}
	credit := func(account int64, amount money.Money, desc string) {
		lines = append(lines, journals.LineInput{AccountID: account, Credit: amount.Round2(), Description: desc})
	}

	switch doc.Type {
	case TypeInvoice:
		debit(ctl.Receivable, total, ref+" receivable")
		for _, l := range doc.Lines {
			credit(l.AccountID, l.NetAmount, lineDescription(ref, l))
		}
		credit(ctl.OutputTax, sumTax(doc.Lines), ref+" output tax")
	case TypeBill:
		for _, l := range doc.Lines {
			debit(l.AccountID, l.NetAmount, lineDescription(ref, l))
		}
		debit(ctl.InputTax, sumTax(doc.Lines), ref+" input tax")
		credit(ctl.Payable, total, ref+" payable")
	case TypeCreditNote:
		for _, l := range doc.Lines {
			debit(l.AccountID, l.NetAmount, lineDescription(ref, l))
		}
		debit(ctl.OutputTax, sumTax(doc.Lines), ref+" output tax")
		credit(ctl.Receivable, total, ref+" receivable")
	case TypePaymentReceived:
		debit(ctl.Bank, total, ref+" deposit")
		credit(ctl.Receivable, total, ref+" receivable")
	case TypeVendorPayment:
		debit(ctl.Payable, total, ref+" payable")
		credit(ctl.Bank, total, ref+" withdrawal")
	default:
		return nil, fmt.Errorf("%w: unsupported document type %q", shared.ErrInvalidDocument, doc.Type)
	}
	return journals.DropZeroLines(lines), nil
}

func sumTax(lines []DocumentLine) money.Money {
	total := money.Zero
	for _, l := range lines {
		total = total.Add(l.TaxAmount.Round2())
	}
	return total
}

func lineDescription(ref string, l DocumentLine) string {
	if l.Description != "" {
		return l.Description
	}
	return fmt.Sprintf("%s line %d", ref, l.LineNo)
}

// OpeningBalanceLines books a bank opening balance against opening-balance
// equity. Negative balances (overdrafts) swap the sides.
func OpeningBalanceLines(bankAccountID, equityAccountID int64, amount money.Money) ([]journals.LineInput, error) {
	amount = amount.Round2()
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: opening balance must be nonzero", shared.ErrInvalidDocument)
	}
	bank := journals.LineInput{AccountID: bankAccountID, Description: "Bank opening balance"}
	equity := journals.LineInput{AccountID: equityAccountID, Description: "Opening balance equity"}
	if amount.IsPositive() {
		bank.Debit, equity.Credit = amount, amount
	} else {
		bank.Credit, equity.Debit = amount.Abs(), amount.Abs()
	}
	return []journals.LineInput{bank, equity}, nil
}
