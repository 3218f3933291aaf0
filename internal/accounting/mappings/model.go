package mappings

import "time"

// Keys of the control accounts every org maps.
const (
	KeyReceivable     = "ar.control"
	KeyPayable        = "ap.control"
	KeyOutputTax      = "vat.output"
	KeyInputTax       = "vat.input"
	KeyOpeningBalance = "equity.opening_balance"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	OrgID     int64
	Key       string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
