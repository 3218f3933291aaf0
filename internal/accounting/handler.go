// Package accounting exposes the ledger's HTTP surface.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/ledger/internal/accounting/posting"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	"github.com/odyssey-erp/ledger/internal/money"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// IdempotencyHeader carries the client key of a retried write.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader marks responses served from the idempotency store.
const ReplayedHeader = "Idempotent-Replayed"

// Poster is the write side of the ledger.
type Poster interface {
	PostDocument(ctx context.Context, actor shared.Actor, req posting.PostRequest) (posting.Outcome, error)
	VoidDocument(ctx context.Context, actor shared.Actor, req posting.VoidRequest) (posting.Outcome, error)
	PostBankOpeningBalance(ctx context.Context, actor shared.Actor, req posting.OpeningBalanceRequest) (posting.Outcome, error)
}

// Reporter is the read side of the ledger.
type Reporter interface {
	TrialBalance(ctx context.Context, orgID int64, from, to time.Time) (reports.TrialBalance, error)
	ProfitAndLoss(ctx context.Context, orgID int64, from, to time.Time) (reports.ProfitAndLoss, error)
	BalanceSheet(ctx context.Context, orgID int64, asOf time.Time) (reports.BalanceSheet, error)
	ARAging(ctx context.Context, orgID int64, asOf time.Time) (reports.Aging, error)
	APAging(ctx context.Context, orgID int64, asOf time.Time) (reports.Aging, error)
	VATSummary(ctx context.Context, orgID int64, from, to time.Time) (reports.VATSummary, error)
}

// Handler wires ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	posting   Poster
	reports   Reporter
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, poster Poster, reporter Reporter) *Handler {
	return &Handler{logger: logger, posting: poster, reports: reporter, validator: validator.New()}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents/{id}/post", h.postDocument)
	r.Post("/documents/{id}/void", h.voidDocument)
	r.Post("/bank-accounts/{id}/opening-balance", h.postOpeningBalance)
	r.Route("/reports", func(r chi.Router) {
		r.Get("/trial-balance", h.trialBalance)
		r.Get("/profit-loss", h.profitAndLoss)
		r.Get("/balance-sheet", h.balanceSheet)
		r.Get("/ar-aging", h.arAging)
		r.Get("/ap-aging", h.apAging)
		r.Get("/vat-summary", h.vatSummary)
	})
}

type voidBody struct {
	Reason string `json:"reason" validate:"max=500"`
}

type openingBalanceBody struct {
	Amount   money.Money `json:"amount"`
	Date     string      `json:"date" validate:"required,datetime=2006-01-02"`
	Currency string      `json:"currency" validate:"omitempty,len=3,uppercase"`
}

type rangeQuery struct {
	From string `validate:"required,datetime=2006-01-02"`
	To   string `validate:"required,datetime=2006-01-02"`
}

type asOfQuery struct {
	AsOf string `validate:"required,datetime=2006-01-02"`
}

func (h *Handler) postDocument(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	out, err := h.posting.PostDocument(r.Context(), actor, posting.PostRequest{
		DocumentID: id,
		ClientKey:  r.Header.Get(IdempotencyHeader),
		Method:     r.Method,
		Path:       r.URL.Path,
	})
	if err != nil {
		h.fail(w, r, "post document", err)
		return
	}
	writeOutcome(w, out)
}

func (h *Handler) voidDocument(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var body voidBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, "void document", err)
		return
	}
	out, err := h.posting.VoidDocument(r.Context(), actor, posting.VoidRequest{
		DocumentID: id,
		Reason:     strings.TrimSpace(body.Reason),
		ClientKey:  r.Header.Get(IdempotencyHeader),
		Method:     r.Method,
		Path:       r.URL.Path,
	})
	if err != nil {
		h.fail(w, r, "void document", err)
		return
	}
	writeOutcome(w, out)
}

func (h *Handler) postOpeningBalance(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var body openingBalanceBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, "post opening balance", err)
		return
	}
	date, _ := time.Parse(time.DateOnly, body.Date)
	out, err := h.posting.PostBankOpeningBalance(r.Context(), actor, posting.OpeningBalanceRequest{
		BankAccountID: id,
		Amount:        body.Amount,
		Date:          date,
		Currency:      body.Currency,
		ClientKey:     r.Header.Get(IdempotencyHeader),
		Method:        r.Method,
		Path:          r.URL.Path,
	})
	if err != nil {
		h.fail(w, r, "post opening balance", err)
		return
	}
	writeOutcome(w, out)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	h.rangeReport(w, r, "trial balance", func(ctx context.Context, orgID int64, from, to time.Time) (any, error) {
		return h.reports.TrialBalance(ctx, orgID, from, to)
	})
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	h.rangeReport(w, r, "profit and loss", func(ctx context.Context, orgID int64, from, to time.Time) (any, error) {
		return h.reports.ProfitAndLoss(ctx, orgID, from, to)
	})
}

func (h *Handler) vatSummary(w http.ResponseWriter, r *http.Request) {
	h.rangeReport(w, r, "vat summary", func(ctx context.Context, orgID int64, from, to time.Time) (any, error) {
		return h.reports.VATSummary(ctx, orgID, from, to)
	})
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	h.asOfReport(w, r, "balance sheet", func(ctx context.Context, orgID int64, asOf time.Time) (any, error) {
		return h.reports.BalanceSheet(ctx, orgID, asOf)
	})
}

func (h *Handler) arAging(w http.ResponseWriter, r *http.Request) {
	h.asOfReport(w, r, "ar aging", func(ctx context.Context, orgID int64, asOf time.Time) (any, error) {
		return h.reports.ARAging(ctx, orgID, asOf)
	})
}

func (h *Handler) apAging(w http.ResponseWriter, r *http.Request) {
	h.asOfReport(w, r, "ap aging", func(ctx context.Context, orgID int64, asOf time.Time) (any, error) {
		return h.reports.APAging(ctx, orgID, asOf)
	})
}

func (h *Handler) rangeReport(w http.ResponseWriter, r *http.Request, name string, build func(context.Context, int64, time.Time, time.Time) (any, error)) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	q := rangeQuery{From: r.URL.Query().Get("from"), To: r.URL.Query().Get("to")}
	if err := h.check(q); err != nil {
		h.fail(w, r, name, err)
		return
	}
	from, _ := time.Parse(time.DateOnly, q.From)
	to, _ := time.Parse(time.DateOnly, q.To)
	report, err := build(r.Context(), actor.OrgID, from, to)
	if err != nil {
		h.fail(w, r, name, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) asOfReport(w http.ResponseWriter, r *http.Request, name string, build func(context.Context, int64, time.Time) (any, error)) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	q := asOfQuery{AsOf: r.URL.Query().Get("as_of")}
	if err := h.check(q); err != nil {
		h.fail(w, r, name, err)
		return
	}
	asOf, _ := time.Parse(time.DateOnly, q.AsOf)
	report, err := build(r.Context(), actor.OrgID, asOf)
	if err != nil {
		h.fail(w, r, name, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (shared.Actor, int64, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid id", shared.ErrValidation))
		return shared.Actor{}, 0, false
	}
	return actor, id, true
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.check(target)
}

// check runs struct validation and folds field errors into one validation error.
func (h *Handler) check(target any) error {
	err := h.validator.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(msgs, ", "))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func writeOutcome(w http.ResponseWriter, out posting.Outcome) {
	if out.Replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	status := out.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	httpx.Raw(w, status, out.Body)
}
