package journals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/money"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

type stubReader struct {
	headers map[int64]Header
}

func (s stubReader) Get(_ context.Context, orgID, headerID int64) (Header, error) {
	h, ok := s.headers[headerID]
	if !ok || h.OrgID != orgID {
		return Header{}, shared.ErrHeaderNotFound
	}
	return h, nil
}

func (s stubReader) FindBySource(_ context.Context, orgID int64, sourceType SourceType, sourceID string) (Header, error) {
	for _, h := range s.headers {
		if h.OrgID == orgID && h.SourceType == sourceType && h.SourceID == sourceID {
			return h, nil
		}
	}
	return Header{}, shared.ErrHeaderNotFound
}

func reversedPair() stubReader {
	rev := int64(2)
	orig := int64(1)
	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	return stubReader{headers: map[int64]Header{
		1: {ID: 1, OrgID: 9, SourceType: SourceInvoice, SourceID: "41", PostingDate: day, TotalDebit: money.MustParse("50"), TotalCredit: money.MustParse("50"), ReversedByHeaderID: &rev, Status: HeaderStatusPosted},
		2: {ID: 2, OrgID: 9, SourceType: SourceInvoice, SourceID: ReversalSourceID("41"), PostingDate: day, TotalDebit: money.MustParse("50"), TotalCredit: money.MustParse("50"), ReversesHeaderID: &orig, Status: HeaderStatusPosted},
	}}
}

func TestBySourceIncludesReversal(t *testing.T) {
	svc := NewService(reversedPair())
	header, reversal, err := svc.BySource(context.Background(), 9, SourceInvoice, "41")
	require.NoError(t, err)
	require.Equal(t, int64(1), header.ID)
	require.NotNil(t, reversal)
	require.Equal(t, "41:REVERSAL", reversal.SourceID)
}

func TestBySourceIsScopedToOrg(t *testing.T) {
	svc := NewService(reversedPair())
	_, _, err := svc.BySource(context.Background(), 10, SourceInvoice, "41")
	require.ErrorIs(t, err, kinds.ErrNotFound)
}

func serveJournals(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(nil, NewService(reversedPair()))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(kinds.ContextWithActor(req.Context(), kinds.Actor{OrgID: 9, UserID: 3})))
		})
	})
	r.Route("/gl-headers", h.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandlerBySource(t *testing.T) {
	rec := serveJournals(t, "/gl-headers?source_type=INVOICE&source_id=41")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Header   HeaderResponse `json:"header"`
		Reversal HeaderResponse `json:"reversal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "2025-03-04", body.Header.PostingDate)
	require.Equal(t, "50.00", body.Header.TotalDebit)
	require.Equal(t, int64(2), *body.Header.ReversedByHeaderID)
	require.Equal(t, int64(1), *body.Reversal.ReversesHeaderID)
}

func TestHandlerRejectsMissingSource(t *testing.T) {
	rec := serveJournals(t, "/gl-headers?source_type=INVOICE")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerGetNotFound(t *testing.T) {
	rec := serveJournals(t, "/gl-headers/77")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
