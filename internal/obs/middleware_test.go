package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/noah-isme/apotek-admin/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("apotek", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/sales/drafts/d-1", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/sales/drafts/{id}"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPatch, "/api/v1/sales/drafts/{id}", "200"))
	if total != 1 {
		t.Fatalf("expected counter to be 1, got %v", total)
	}

	samples := testutil.CollectAndCount(metrics.ReqDur)
	if samples == 0 {
		t.Fatalf("expected histogram sample")
	}

	if metrics.InFlight != nil {
		if val := testutil.ToFloat64(metrics.InFlight); val != 0 {
			t.Fatalf("expected no in-flight requests, got %v", val)
		}
	}
}

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("apotek_test", registry)
	obs.MustRegisterDomainMetrics("apotek_test", registry)

	obs.IncDraftRecalculation("quantity_changed")
	obs.AddOverstockWarnings(2)
	obs.AddOverstockWarnings(0)

	if got := testutil.ToFloat64(obs.DraftRecalculationsTotal.WithLabelValues("quantity_changed")); got != 1 {
		t.Fatalf("expected 1 recalculation, got %v", got)
	}
	if got := testutil.ToFloat64(obs.OverstockWarningsTotal); got != 2 {
		t.Fatalf("expected 2 overstock warnings, got %v", got)
	}
}

func TestHTTPMetricsUseChiPatternAndUnmatched(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("", nil, registry)
	again := obs.NewHTTPMetrics("", nil, registry)
	if again.ReqTotal != metrics.ReqTotal {
		t.Fatalf("expected second registration to reuse the counter")
	}

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/v1/sales/{id}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/sales/42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	if got := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/sales/{id}", "200")); got != 1 {
		t.Fatalf("expected routed request under its pattern, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "unmatched", "404")); got != 1 {
		t.Fatalf("expected unmatched request counted once, got %v", got)
	}
}

func TestParseBucketsCSV(t *testing.T) {
	got := obs.ParseBucketsCSV(" 250, 10,abc,,-5,10,1000")
	want := []float64{10, 250, 1000}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if obs.ParseBucketsCSV("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}

func TestRequestLoggerSharesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(obs.RequestLogger{Logger: zerolog.New(&buf)}.Middleware)
	r.Post("/api/v1/sales/drafts/{id}/rows", func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("row added")
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/drafts/d-1/rows", nil)
	req.Header.Set("X-Request-Id", "req-123")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	var handlerLine, accessLine map[string]any
	if err := json.Unmarshal(lines[0], &handlerLine); err != nil {
		t.Fatalf("decode handler line: %v", err)
	}
	if err := json.Unmarshal(lines[1], &accessLine); err != nil {
		t.Fatalf("decode access line: %v", err)
	}
	if handlerLine["request_id"] != "req-123" {
		t.Fatalf("expected handler log to carry request id, got %v", handlerLine)
	}
	if accessLine["level"] != "warn" || accessLine["route"] != "/api/v1/sales/drafts/{id}/rows" {
		t.Fatalf("unexpected access log: %v", accessLine)
	}
}
