package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LEDGER_STORE", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.LedgerFiscalStartMonth)
	require.Equal(t, "J", cfg.LedgerVoucherPrefix)
	require.Equal(t, 10*time.Minute, cfg.LedgerReportCacheTTL)
	require.Equal(t, "ledger:reports", cfg.LedgerReportCacheNamespace)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("LEDGER_STORE", "sqlite")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "LEDGER_STORE")

	t.Setenv("LEDGER_STORE", "memory")
	t.Setenv("LEDGER_FISCAL_START_MONTH", "13")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "LEDGER_FISCAL_START_MONTH")
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "shown", entry["msg"])
}

func TestRouterHealthAndRequestID(t *testing.T) {
	handler := NewRouter(RouterParams{Config: &Config{}})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	_, err := uuid.Parse(rr.Header().Get(RequestIDHeader))
	require.NoError(t, err)

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, incoming)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, incoming, rr.Header().Get(RequestIDHeader))
}

func TestRouterReadiness(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	handler := NewRouter(RouterParams{
		Config: &Config{},
		Checks: []ReadinessCheck{{Name: "postgres", Ping: healthy}, {Name: "redis", Ping: healthy}},
	})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"postgres":"ok","redis":"ok"}`, rr.Body.String())

	handler = NewRouter(RouterParams{
		Config: &Config{},
		Checks: []ReadinessCheck{{Name: "postgres", Ping: func(context.Context) error { return errors.New("refused") }}},
	})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NotContains(t, rr.Body.String(), "refused")
}

func TestRouterMountsMetricsAndJobs(t *testing.T) {
	metrics := observability.NewMetrics()
	handler := NewRouter(RouterParams{
		Config:     &Config{},
		Metrics:    metrics,
		JobHandler: jobs.NewHandler(nil, nil),
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `odyssey_http_requests_total{code="200",route="/jobs/health"} 1`)
}

func TestOpenLedgerInMemory(t *testing.T) {
	cfg := &Config{LedgerStore: StoreMemory, LedgerFiscalStartMonth: 4, LedgerVoucherPrefix: "V"}
	rt, err := OpenLedger(context.Background(), cfg, newLogger(cfg, io.Discard), nil)
	require.NoError(t, err)
	defer rt.Close()

	require.Nil(t, rt.Redis)
	require.Len(t, rt.Checks, 1)
	require.Equal(t, StoreMemory, rt.Checks[0].Name)
	require.NoError(t, rt.Checks[0].Ping(context.Background()))
	require.Equal(t, 4, rt.Ledger.Calendar().StartMonth())
}

func TestOpenLedgerWithRedisCache(t *testing.T) {
	redis := miniredis.RunT(t)
	cfg := &Config{
		LedgerStore:            StoreMemory,
		LedgerFiscalStartMonth: 1,
		LedgerVoucherPrefix:    "V",
		LedgerReportCacheTTL:   time.Minute,
		RedisAddr:              redis.Addr(),

		LedgerReportCacheNamespace: "books-v",
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := OpenLedger(ctx, cfg, newLogger(cfg, io.Discard), observability.NewMetrics().Ledger())
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Redis)
	require.Len(t, rt.Checks, 2)
	require.NoError(t, rt.Checks[1].Ping(ctx))

	_, err = rt.Ledger.Reports.TrialBalance(ctx, 2025, 1, "")
	require.NoError(t, err)
	require.True(t, redis.Exists("books-v:generation"))
	for _, key := range redis.Keys() {
		require.True(t, strings.HasPrefix(key, "books-v:"), key)
	}
}
