package posting

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/numbering"
	"github.com/odyssey-erp/ledger/internal/money"
)

// DocumentType enumerates postable source documents.
type DocumentType string

const (
	TypeInvoice         DocumentType = "INVOICE"
	TypeBill            DocumentType = "BILL"
	TypeCreditNote      DocumentType = "CREDIT_NOTE"
	TypeVendorPayment   DocumentType = "VENDOR_PAYMENT"
	TypePaymentReceived DocumentType = "PAYMENT_RECEIVED"
)

// Valid reports whether t is a known type.
func (t DocumentType) Valid() bool {
	switch t {
	case TypeInvoice, TypeBill, TypeCreditNote, TypeVendorPayment, TypePaymentReceived:
		return true
	}
	return false
}

// SourceType maps the document type onto the GL header source type.
func (t DocumentType) SourceType() journals.SourceType {
	return journals.SourceType(t)
}

// NumberingType maps the document type onto its numbering sequence.
func (t DocumentType) NumberingType() numbering.DocumentType {
	return numbering.DocumentType(t)
}

// IsPayment reports whether t settles other documents with cash.
func (t DocumentType) IsPayment() bool {
	return t == TypeVendorPayment || t == TypePaymentReceived
}

// IsPayable reports whether documents of t carry amountPaid/paymentStatus.
func (t DocumentType) IsPayable() bool {
	return t == TypeInvoice || t == TypeBill
}

// AllocationTarget returns the document type t may be allocated against.
func (t DocumentType) AllocationTarget() (DocumentType, bool) {
	switch t {
	case TypePaymentReceived, TypeCreditNote:
		return TypeInvoice, true
	case TypeVendorPayment:
		return TypeBill, true
	}
	return "", false
}

// Label is the lower-case prefix used in audit actions and idempotency scopes.
func (t DocumentType) Label() string {
	return strings.ToLower(string(t))
}

// Status is the document lifecycle: DRAFT -> POSTED -> VOID.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
	StatusVoid   Status = "VOID"
)

// PaymentStatus tracks settlement of invoices and bills.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// PaymentStatusFor derives the settlement status from paid against total.
func PaymentStatusFor(total, paid money.Money) PaymentStatus {
	paid = paid.Round2()
	switch {
	case !paid.IsPositive():
		return PaymentUnpaid
	case paid.Gte(total.Round2()):
		return PaymentPaid
	default:
		return PaymentPartial
	}
}

// Document is a source document in any lifecycle state.
type Document struct {
	ID            int64
	OrgID         int64
	Type          DocumentType
	Number        string
	Status        Status
	PartyID       int64
	DocumentDate  time.Time
	DueDate       *time.Time
	Currency      string
	ExchangeRate  *decimal.Decimal
	Subtotal      money.Money
	TaxTotal      money.Money
	Total         money.Money
	AmountPaid    money.Money
	PaymentStatus PaymentStatus
	CashAccountID *int64
	GLHeaderID    *int64
	PostedAt      *time.Time
	VoidedAt      *time.Time
	Lines         []DocumentLine
	Allocations   []Allocation
}

// EffectiveDate is the date the lock guard checks.
func (d Document) EffectiveDate() time.Time {
	return d.DocumentDate
}

// Outstanding is the unsettled part of an invoice or bill.
func (d Document) Outstanding() money.Money {
	return d.Total.Sub(d.AmountPaid).Round2()
}

// DocumentLine is one priced line of an invoice, bill or credit note.
type DocumentLine struct {
	ID             int64
	LineNo         int
	AccountID      int64
	Description    string
	Quantity       decimal.Decimal
	UnitPrice      money.Money
	DiscountAmount money.Money
	NetAmount      money.Money
	TaxCodeID      *int64
	TaxRate        decimal.Decimal
	TaxAmount      money.Money
}

// Allocation applies part of a payment or credit note to an invoice or bill.
type Allocation struct {
	ID               int64
	SourceDocumentID int64
	TargetDocumentID int64
	Amount           money.Money
}
