package posting

import (
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
)

// Outcome is the result of a post or void. Body holds the exact response bytes;
// replays return the bytes recorded by the first execution.
type Outcome struct {
	StatusCode int
	Body       []byte
	Replayed   bool
	Document   Document
	Header     journals.Header
	Reversal   *journals.Header
}

// DocumentResponse is the wire shape of a document after a post or void.
type DocumentResponse struct {
	ID            int64         `json:"id"`
	Type          DocumentType  `json:"type"`
	Number        string        `json:"number"`
	Status        Status        `json:"status"`
	DocumentDate  string        `json:"document_date"`
	Total         string        `json:"total"`
	AmountPaid    string        `json:"amount_paid"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	GLHeaderID    *int64        `json:"gl_header_id"`
	PostedAt      *string       `json:"posted_at"`
	VoidedAt      *string       `json:"voided_at"`
}

// PostResponse is returned by a successful post.
type PostResponse struct {
	Document DocumentResponse        `json:"document"`
	Header   journals.HeaderResponse `json:"gl_header"`
}

// VoidResponse is returned by a successful void.
type VoidResponse struct {
	Document DocumentResponse        `json:"document"`
	Original journals.HeaderResponse `json:"gl_header"`
	Reversal journals.HeaderResponse `json:"reversal_header"`
}

// OpeningBalanceResponse is returned by a bank opening balance posting.
type OpeningBalanceResponse struct {
	BankAccountID int64                   `json:"bank_account_id"`
	Header        journals.HeaderResponse `json:"gl_header"`
}

func toDocumentResponse(d Document) DocumentResponse {
	return DocumentResponse{
		ID:            d.ID,
		Type:          d.Type,
		Number:        d.Number,
		Status:        d.Status,
		DocumentDate:  d.DocumentDate.UTC().Format(time.DateOnly),
		Total:         d.Total.Round2().String(),
		AmountPaid:    d.AmountPaid.Round2().String(),
		PaymentStatus: d.PaymentStatus,
		GLHeaderID:    d.GLHeaderID,
		PostedAt:      formatTime(d.PostedAt),
		VoidedAt:      formatTime(d.VoidedAt),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
