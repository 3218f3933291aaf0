package accounting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/posting"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	acctshared "github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/money"
	"github.com/odyssey-erp/ledger/internal/shared"
)

type fakePoster struct {
	post    posting.PostRequest
	void    posting.VoidRequest
	opening posting.OpeningBalanceRequest
	actor   shared.Actor
	out     posting.Outcome
	err     error
}

func (f *fakePoster) PostDocument(_ context.Context, actor shared.Actor, req posting.PostRequest) (posting.Outcome, error) {
	f.actor, f.post = actor, req
	return f.out, f.err
}

func (f *fakePoster) VoidDocument(_ context.Context, actor shared.Actor, req posting.VoidRequest) (posting.Outcome, error) {
	f.actor, f.void = actor, req
	return f.out, f.err
}

func (f *fakePoster) PostBankOpeningBalance(_ context.Context, actor shared.Actor, req posting.OpeningBalanceRequest) (posting.Outcome, error) {
	f.actor, f.opening = actor, req
	return f.out, f.err
}

type fakeReporter struct {
	from, to, asOf time.Time
	err            error
}

func (f *fakeReporter) TrialBalance(_ context.Context, _ int64, from, to time.Time) (reports.TrialBalance, error) {
	f.from, f.to = from, to
	return reports.TrialBalance{Balanced: true}, f.err
}

func (f *fakeReporter) ProfitAndLoss(_ context.Context, _ int64, from, to time.Time) (reports.ProfitAndLoss, error) {
	f.from, f.to = from, to
	return reports.ProfitAndLoss{}, f.err
}

func (f *fakeReporter) BalanceSheet(_ context.Context, _ int64, asOf time.Time) (reports.BalanceSheet, error) {
	f.asOf = asOf
	return reports.BalanceSheet{}, f.err
}

func (f *fakeReporter) ARAging(_ context.Context, _ int64, asOf time.Time) (reports.Aging, error) {
	f.asOf = asOf
	return reports.Aging{}, f.err
}

func (f *fakeReporter) APAging(_ context.Context, _ int64, asOf time.Time) (reports.Aging, error) {
	f.asOf = asOf
	return reports.Aging{}, f.err
}

func (f *fakeReporter) VATSummary(_ context.Context, _ int64, from, to time.Time) (reports.VATSummary, error) {
	f.from, f.to = from, to
	return reports.VATSummary{}, f.err
}

var testActor = shared.Actor{OrgID: 1, UserID: 9}

func newTestRouter(p *fakePoster, r *fakeReporter) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), p, r)
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("X-Test-Anonymous") == "" {
				req = req.WithContext(shared.ContextWithActor(req.Context(), testActor))
			}
			next.ServeHTTP(w, req)
		})
	})
	h.MountRoutes(router)
	return router
}

func serve(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostDocumentPassesKeyAndWritesBodyVerbatim(t *testing.T) {
	p := &fakePoster{out: posting.Outcome{StatusCode: http.StatusOK, Body: []byte(`{"document":{"id":42}}`)}}
	rec := serve(t, newTestRouter(p, &fakeReporter{}), http.MethodPost, "/documents/42/post", "", map[string]string{IdempotencyHeader: "k-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `{"document":{"id":42}}`, rec.Body.String())
	require.Empty(t, rec.Header().Get(ReplayedHeader))
	require.Equal(t, int64(42), p.post.DocumentID)
	require.Equal(t, "k-1", p.post.ClientKey)
	require.Equal(t, http.MethodPost, p.post.Method)
	require.Equal(t, "/documents/42/post", p.post.Path)
	require.Equal(t, testActor, p.actor)
}

func TestReplayedOutcomeIsFlagged(t *testing.T) {
	p := &fakePoster{out: posting.Outcome{StatusCode: http.StatusOK, Body: []byte(`{}`), Replayed: true}}
	rec := serve(t, newTestRouter(p, &fakeReporter{}), http.MethodPost, "/documents/7/post", "", nil)
	require.Equal(t, "true", rec.Header().Get(ReplayedHeader))
}

func TestPostDocumentRejectsBadID(t *testing.T) {
	rec := serve(t, newTestRouter(&fakePoster{}, &fakeReporter{}), http.MethodPost, "/documents/abc/post", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestMissingActorIsUnauthorized(t *testing.T) {
	rec := serve(t, newTestRouter(&fakePoster{}, &fakeReporter{}), http.MethodPost, "/documents/1/post", "", map[string]string{"X-Test-Anonymous": "1"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{acctshared.ErrDocumentNotFound, http.StatusNotFound},
		{acctshared.ErrInvalidStatus, http.StatusConflict},
		{&acctshared.PeriodLockedError{}, http.StatusLocked},
		{acctshared.ErrUnbalanced, http.StatusInternalServerError},
		{acctshared.ErrOverAllocated, http.StatusBadRequest},
	}
	for _, tc := range cases {
		p := &fakePoster{err: tc.err}
		rec := serve(t, newTestRouter(p, &fakeReporter{}), http.MethodPost, "/documents/3/void", `{"reason":"dup"}`, nil)
		require.Equal(t, tc.code, rec.Code, fmt.Sprint(tc.err))
	}
}

func TestVoidDocumentReadsReason(t *testing.T) {
	p := &fakePoster{out: posting.Outcome{StatusCode: http.StatusOK, Body: []byte(`{}`)}}
	rec := serve(t, newTestRouter(p, &fakeReporter{}), http.MethodPost, "/documents/3/void", `{"reason":"  entered twice "}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "entered twice", p.void.Reason)
	require.Equal(t, int64(3), p.void.DocumentID)
}

func TestVoidDocumentRejectsUnknownFields(t *testing.T) {
	rec := serve(t, newTestRouter(&fakePoster{}, &fakeReporter{}), http.MethodPost, "/documents/3/void", `{"why":"x"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpeningBalanceBody(t *testing.T) {
	p := &fakePoster{out: posting.Outcome{StatusCode: http.StatusOK, Body: []byte(`{}`)}}
	rec := serve(t, newTestRouter(p, &fakeReporter{}), http.MethodPost, "/bank-accounts/12/opening-balance",
		`{"amount":"1500.50","date":"2024-01-01","currency":"IDR"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(12), p.opening.BankAccountID)
	require.True(t, p.opening.Amount.Eq(money.MustParse("1500.50")))
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), p.opening.Date)
	require.Equal(t, "IDR", p.opening.Currency)
}

func TestOpeningBalanceRejectsBadDate(t *testing.T) {
	rec := serve(t, newTestRouter(&fakePoster{}, &fakeReporter{}), http.MethodPost, "/bank-accounts/12/opening-balance",
		`{"amount":"10","date":"01/02/2024"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRangeReportParsesDates(t *testing.T) {
	r := &fakeReporter{}
	rec := serve(t, newTestRouter(&fakePoster{}, r), http.MethodGet, "/reports/trial-balance?from=2024-01-01&to=2024-03-31", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), r.from)
	require.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), r.to)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["balanced"])
}

func TestRangeReportRequiresBothBounds(t *testing.T) {
	rec := serve(t, newTestRouter(&fakePoster{}, &fakeReporter{}), http.MethodGet, "/reports/vat-summary?from=2024-01-01", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsOfReports(t *testing.T) {
	for _, path := range []string{"/reports/balance-sheet", "/reports/ar-aging", "/reports/ap-aging"} {
		r := &fakeReporter{}
		rec := serve(t, newTestRouter(&fakePoster{}, r), http.MethodGet, path+"?as_of=2024-06-30", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), r.asOf, path)
	}
}

func TestReportErrorsUseProblemDetails(t *testing.T) {
	r := &fakeReporter{err: fmt.Errorf("%w: from after to", shared.ErrValidation)}
	rec := serve(t, newTestRouter(&fakePoster{}, r), http.MethodGet, "/reports/profit-loss?from=2024-02-01&to=2024-01-01", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "from after to")
}
