package journals

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/money"
)

// HeaderStatus enumerates header lifecycle values. Headers never leave POSTED.
type HeaderStatus string

const (
	HeaderStatusPosted HeaderStatus = "POSTED"
)

// SourceType identifies what produced a header.
type SourceType string

const (
	SourceInvoice         SourceType = "INVOICE"
	SourceBill            SourceType = "BILL"
	SourceCreditNote      SourceType = "CREDIT_NOTE"
	SourceVendorPayment   SourceType = "VENDOR_PAYMENT"
	SourcePaymentReceived SourceType = "PAYMENT_RECEIVED"
	SourceJournal         SourceType = "JOURNAL"
	SourceBankOpening     SourceType = "BANK_OPENING_BALANCE"
)

// ReversalSuffix marks the source id of reversal headers.
const ReversalSuffix = ":REVERSAL"

// IsAccrualDocument reports whether the source is recognised on the accrual basis only.
func (s SourceType) IsAccrualDocument() bool {
	switch s {
	case SourceInvoice, SourceBill, SourceCreditNote:
		return true
	}
	return false
}

// Header captures posting metadata.
type Header struct {
	ID                 int64
	OrgID              int64
	SourceType         SourceType
	SourceID           string
	PostingDate        time.Time
	Currency           string
	ExchangeRate       *decimal.Decimal
	TotalDebit         money.Money
	TotalCredit        money.Money
	Status             HeaderStatus
	ReversedByHeaderID *int64
	ReversesHeaderID   *int64
	Memo               string
	PostedBy           int64
	CreatedAt          time.Time
	Lines              []Line
}

// IsReversed reports whether a reversal header points back at h.
func (h Header) IsReversed() bool {
	return h.ReversedByHeaderID != nil
}

// Line stores debit or credit amount for an account.
type Line struct {
	ID          int64
	HeaderID    int64
	LineNo      int
	AccountID   int64
	Debit       money.Money
	Credit      money.Money
	Description string
}

// Totals is the outcome of a successful validation.
type Totals struct {
	Debit  money.Money
	Credit money.Money
}
