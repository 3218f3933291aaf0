// Package numbering assigns human-readable document numbers from per-org counters.
package numbering

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/odyssey-erp/ledger/internal/shared"
)

// DocumentType keys a numbering format.
type DocumentType string

const (
	Invoice         DocumentType = "INVOICE"
	Bill            DocumentType = "BILL"
	CreditNote      DocumentType = "CREDIT_NOTE"
	VendorPayment   DocumentType = "VENDOR_PAYMENT"
	PaymentReceived DocumentType = "PAYMENT_RECEIVED"
)

const defaultPadding = 5

// Format is a prefix plus a zero-padded counter. Next is the counter the
// following document will receive.
type Format struct {
	Prefix  string `json:"prefix"`
	Padding int    `json:"padding"`
	Next    int64  `json:"next"`
}

// Formats maps document types to their format.
type Formats map[DocumentType]Format

var defaults = map[DocumentType]string{
	Invoice:         "INV-",
	Bill:            "BILL-",
	CreditNote:      "CN-",
	VendorPayment:   "VP-",
	PaymentReceived: "PR-",
}

// Default returns the fallback format for docType.
func Default(docType DocumentType) (Format, error) {
	prefix, ok := defaults[docType]
	if !ok {
		return Format{}, fmt.Errorf("%w: no numbering format for %q", shared.ErrValidation, docType)
	}
	return Format{Prefix: prefix, Padding: defaultPadding, Next: 1}, nil
}

// Render formats counter with the format's prefix and padding.
func (f Format) Render(counter int64) string {
	digits := strconv.FormatInt(counter, 10)
	if pad := f.Padding - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	return f.Prefix + digits
}

// Next returns the number assigned to the next docType document and a copy of
// formats with that counter advanced. formats itself is left untouched.
func Next(formats Formats, docType DocumentType) (string, Formats, error) {
	format, ok := formats[docType]
	if !ok {
		var err error
		format, err = Default(docType)
		if err != nil {
			return "", nil, err
		}
	}
	if format.Next < 1 {
		format.Next = 1
	}
	if format.Padding < 0 {
		format.Padding = 0
	}
	assigned := format.Render(format.Next)

	next := make(Formats, len(formats)+1)
	for k, v := range formats {
		next[k] = v
	}
	format.Next++
	next[docType] = format
	return assigned, next, nil
}
