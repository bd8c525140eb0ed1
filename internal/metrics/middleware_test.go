package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/v1/collections/{name}/documents", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	r.Post("/v1/context/query", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"fragments":[]}`))
	})
	r.Post("/v1/admin/prewarm", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return r
}

func TestMetricsMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := newRouter()

	tests := []struct {
		path    string
		pattern string
		status  string
	}{
		{"/v1/collections/cv_documents/documents", "/v1/collections/{name}/documents", "201"},
		{"/v1/collections/job_posts/documents", "/v1/collections/{name}/documents", "201"},
		{"/v1/context/query", "/v1/context/query", "200"},
		{"/v1/admin/prewarm", "/v1/admin/prewarm", "502"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			counter := httpRequestsTotal.WithLabelValues(http.MethodPost, tc.pattern, tc.status)
			before := testutil.ToFloat64(counter)

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, tc.path, http.NoBody))

			if got := testutil.ToFloat64(counter) - before; got != 1 {
				t.Errorf("requests_total{%s,%s} grew by %v, want 1", tc.pattern, tc.status, got)
			}
		})
	}
	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected latency observations")
	}
}

func TestMetricsMiddleware_ResponseBytesAndInFlight(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		if got := testutil.ToFloat64(httpInFlight); got < 1 {
			t.Errorf("expected in-flight >= 1 inside the handler, got %f", got)
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	before := testutil.ToFloat64(httpResponseBytes.WithLabelValues("GET", "/v1/health"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/health", http.NoBody))

	if got := testutil.ToFloat64(httpResponseBytes.WithLabelValues("GET", "/v1/health")) - before; got != 15 {
		t.Errorf("response bytes = %f, want 15", got)
	}
	if got := testutil.ToFloat64(httpInFlight); got != 0 {
		t.Errorf("in-flight after request = %f, want 0", got)
	}
}

func TestMetricsMiddleware_UnmatchedRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nope", http.NoBody))

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unknown", "404")); val < 1 {
		t.Errorf("expected unmatched route to collapse to unknown, got %f", val)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unknown"},
		{"/v1/context/query", "/v1/context/query"},
		{"/health", "/health"},
	}

	for _, tc := range tests {
		if got := normalizePath(tc.input); got != tc.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestRegister_Idempotent(t *testing.T) {
	RegisterHTTPMetrics()
	RegisterHTTPMetrics()
	RegisterEmbeddingMetrics()
	RegisterEmbeddingMetrics()
	RegisterRetrievalMetrics()
	RegisterRetrievalMetrics()

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Error("expected registered metric families")
	}
}
