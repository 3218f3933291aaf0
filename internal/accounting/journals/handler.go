package journals

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	"github.com/odyssey-erp/ledger/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid header id", shared.ErrValidation))
		return
	}
	header, err := h.service.Get(r.Context(), actor.OrgID, id)
	if err != nil {
		h.fail(w, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(header))
}

func (h *Handler) BySource(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	q := r.URL.Query()
	sourceType, sourceID := SourceType(q.Get("source_type")), q.Get("source_id")
	if sourceType == "" || sourceID == "" {
		httpx.RespondError(w, fmt.Errorf("%w: source_type and source_id required", shared.ErrValidation))
		return
	}
	header, reversal, err := h.service.BySource(r.Context(), actor.OrgID, sourceType, sourceID)
	if err != nil {
		h.fail(w, "find journal by source", err)
		return
	}
	resp := map[string]any{"header": ToResponse(header)}
	if reversal != nil {
		resp["reversal"] = ToResponse(*reversal)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// HeaderResponse is the wire shape of a header.
type HeaderResponse struct {
	ID                 int64          `json:"id"`
	SourceType         SourceType     `json:"source_type"`
	SourceID           string         `json:"source_id"`
	PostingDate        string         `json:"posting_date"`
	Currency           string         `json:"currency"`
	ExchangeRate       *string        `json:"exchange_rate"`
	TotalDebit         string         `json:"total_debit"`
	TotalCredit        string         `json:"total_credit"`
	Status             HeaderStatus   `json:"status"`
	ReversedByHeaderID *int64         `json:"reversed_by_header_id"`
	ReversesHeaderID   *int64         `json:"reverses_header_id"`
	Memo               string         `json:"memo,omitempty"`
	Lines              []LineResponse `json:"lines"`
}

// LineResponse is the wire shape of a line.
type LineResponse struct {
	LineNo      int    `json:"line_no"`
	AccountID   int64  `json:"account_id"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Description string `json:"description,omitempty"`
}

// ToResponse renders a header in its wire shape.
func ToResponse(h Header) HeaderResponse {
	resp := HeaderResponse{
		ID:                 h.ID,
		SourceType:         h.SourceType,
		SourceID:           h.SourceID,
		PostingDate:        h.PostingDate.UTC().Format("2006-01-02"),
		Currency:           h.Currency,
		TotalDebit:         h.TotalDebit.String(),
		TotalCredit:        h.TotalCredit.String(),
		Status:             h.Status,
		ReversedByHeaderID: h.ReversedByHeaderID,
		ReversesHeaderID:   h.ReversesHeaderID,
		Memo:               h.Memo,
		Lines:              make([]LineResponse, 0, len(h.Lines)),
	}
	if h.ExchangeRate != nil {
		rate := h.ExchangeRate.String()
		resp.ExchangeRate = &rate
	}
	for _, l := range h.Lines {
		resp.Lines = append(resp.Lines, LineResponse{
			LineNo:      l.LineNo,
			AccountID:   l.AccountID,
			Debit:       l.Debit.String(),
			Credit:      l.Credit.String(),
			Description: l.Description,
		})
	}
	return resp
}
