package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryCounters(t *testing.T) {
	tel := NewTelemetry("trellis", "test")

	tel.Inc("trellis_jobs_total")
	tel.Inc("trellis_jobs_total")
	tel.Inc("trellis_lint_runs_total")

	assert.Equal(t, int64(2), tel.Counter("trellis_jobs_total").Load())
	assert.Equal(t, int64(1), tel.Counter("trellis_lint_runs_total").Load())
	assert.Equal(t, int64(0), tel.Counter("trellis_unused_total").Load())
}

func TestTelemetryConcurrentInc(t *testing.T) {
	tel := NewTelemetry("trellis", "test")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tel.Inc("trellis_jobs_total")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(800), tel.Counter("trellis_jobs_total").Load())
}

func TestExporterServeHTTP(t *testing.T) {
	tel := NewTelemetry("trellis", "1.2.3")
	tel.Inc("trellis_jobs_total")
	tel.Inc(`trellis_http_responses_total{status="200"}`)
	tel.Inc(`trellis_http_responses_total{status="404"}`)

	exporter := NewExporter(tel)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	exporter.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; version=0.0.4; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `trellis_build_info{service="trellis",version="1.2.3"} 1`)
	assert.Contains(t, body, "trellis_uptime_seconds ")
	assert.Contains(t, body, "trellis_jobs_total 1")
	assert.Contains(t, body, `trellis_http_responses_total{status="200"} 1`)
	assert.Contains(t, body, `trellis_http_responses_total{status="404"} 1`)

	// Each metric family announces its type exactly once.
	assert.Equal(t, 1, strings.Count(body, "# TYPE trellis_http_responses_total counter"))
	assert.Equal(t, 1, strings.Count(body, "# TYPE trellis_jobs_total counter"))
}

func TestHTTPMetrics(t *testing.T) {
	t.Run("counts requests and status codes", func(t *testing.T) {
		tel := NewTelemetry("trellis", "test")
		handler := HTTPMetrics(tel)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, int64(1), tel.Counter("trellis_http_requests_total").Load())
		assert.Equal(t, int64(1), tel.Counter(`trellis_http_responses_total{status="404"}`).Load())
	})

	t.Run("implicit 200 when handler never writes a status", func(t *testing.T) {
		tel := NewTelemetry("trellis", "test")
		handler := HTTPMetrics(tel)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, int64(1), tel.Counter(`trellis_http_responses_total{status="200"}`).Load())
	})

	t.Run("nil registry passes through", func(t *testing.T) {
		called := false
		handler := HTTPMetrics(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.True(t, called)
	})
}

func TestInitTelemetry(t *testing.T) {
	origTelemetry := TelemetrySystem
	origExporter := PrometheusExporter
	defer func() {
		TelemetrySystem = origTelemetry
		PrometheusExporter = origExporter
	}()

	TelemetrySystem = nil
	PrometheusExporter = nil
	InitTelemetry("trellis", "test")

	require.NotNil(t, TelemetrySystem)
	require.NotNil(t, PrometheusExporter)
	assert.Same(t, TelemetrySystem, PrometheusExporter.telemetry)
}
