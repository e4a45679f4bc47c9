package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wolfman30/mealprep-intake/internal/observability/metrics"
)

func TestRequestLoggerRecordsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(RequestLogger(nil, m))
	r.Get("/orders/{recordID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/r1", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") != "req-1" {
		t.Fatalf("request id should be echoed, got %q", rec.Header().Get("X-Request-ID"))
	}
	if n, err := testutil.GatherAndCount(reg, "mealprep_http_requests_total"); err != nil || n != 1 {
		t.Fatalf("expected one request series, n=%d err=%v", n, err)
	}
	const want = `
# HELP mealprep_http_requests_total Total HTTP requests
# TYPE mealprep_http_requests_total counter
mealprep_http_requests_total{method="GET",route="/orders/{recordID}",status="418"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "mealprep_http_requests_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestRequestLoggerGeneratesRequestID(t *testing.T) {
	handler := RequestLogger(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}
}
