package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestObservePostingCountsByLabels(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePosting("INVOICE", "post", "posted")
	metrics.ObservePosting("INVOICE", "post", "posted")
	metrics.ObservePosting("BILL", "void", "rejected")

	body := scrape(t, metrics)
	if !strings.Contains(body, `ledger_postings_total{action="post",outcome="posted",source_type="INVOICE"} 2`) {
		t.Fatalf("expected posted counter, got: %s", body)
	}
	if !strings.Contains(body, `ledger_postings_total{action="void",outcome="rejected",source_type="BILL"} 1`) {
		t.Fatalf("expected rejected counter, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObservePosting("INVOICE", "post", "posted")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusLocked)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/v1/documents/{id}/post")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/9/post", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusLocked {
		t.Fatalf("expected status %d, got %d", http.StatusLocked, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `ledger_http_requests_total{code="423",route="/api/v1/documents/{id}/post"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `ledger_http_request_duration_seconds_bucket{route="/api/v1/documents/{id}/post"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}
