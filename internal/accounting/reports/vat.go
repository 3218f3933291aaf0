package reports

import (
	"github.com/odyssey-erp/ledger/internal/money"
)

// VATSummary totals output and input VAT movements for a period.
type VATSummary struct {
	From          string      `json:"from"`
	To            string      `json:"to"`
	OutputVAT     money.Money `json:"output_vat"`
	InputVAT      money.Money `json:"input_vat"`
	NetPayable    money.Money `json:"net_payable"`
	OutputAccount int64       `json:"output_account_id"`
	InputAccount  int64       `json:"input_account_id"`
}

// BuildVATSummary reads the mapped VAT accounts out of period balances.
// Output VAT is credit-positive, input VAT debit-positive.
func BuildVATSummary(balances []AccountBalance, outputAccountID, inputAccountID int64) VATSummary {
	summary := VATSummary{OutputAccount: outputAccountID, InputAccount: inputAccountID}
	for _, b := range balances {
		switch b.AccountID {
		case outputAccountID:
			summary.OutputVAT = summary.OutputVAT.Add(b.Credit.Sub(b.Debit))
		case inputAccountID:
			summary.InputVAT = summary.InputVAT.Add(b.Debit.Sub(b.Credit))
		}
	}
	summary.OutputVAT = summary.OutputVAT.Round2()
	summary.InputVAT = summary.InputVAT.Round2()
	summary.NetPayable = summary.OutputVAT.Sub(summary.InputVAT)
	return summary
}
