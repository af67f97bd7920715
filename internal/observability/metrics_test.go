package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandlerExposesLedgerCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.Ledger().JournalEvent("post", "ok")
	metrics.Ledger().GuardFailure("journal", "conflict")
	metrics.Ledger().UnbalancedReport("trial_balance")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	for _, want := range []string{
		`odyssey_ledger_journal_events_total{action="post",outcome="ok"} 1`,
		`odyssey_ledger_guard_failures_total{entity="journal",outcome="conflict"} 1`,
		`odyssey_ledger_unbalanced_reports_total{report="trial_balance"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %s, got: %s", want, body)
		}
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/readyz")

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/readyz\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/readyz\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestLedgerMetricsOnCustomRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	ledger := NewLedgerMetrics(registry)

	ledger.JournalEvent("cancel", "already_cancelled")
	ledger.JournalEvent("cancel", "already_cancelled")

	if got := testutil.ToFloat64(ledger.journals.WithLabelValues("cancel", "already_cancelled")); got != 2 {
		t.Fatalf("expected 2 cancel events, got %v", got)
	}
}

func TestNilLedgerMetricsIsNoop(t *testing.T) {
	var ledger *LedgerMetrics
	ledger.JournalEvent("post", "ok")
	ledger.GuardFailure("account", "not_found")
	ledger.UnbalancedReport("balance_sheet")

	var metrics *Metrics
	if metrics.Ledger() != nil {
		t.Fatal("expected nil ledger metrics from nil Metrics")
	}
}
