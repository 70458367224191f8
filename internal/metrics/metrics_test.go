package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/atomic"
)

// TestMetrics_Endpoint_Returns200 verifies /metrics returns 200 with
// Prometheus text format, the same middleware wiring app.go uses.
func TestMetrics_Endpoint_Returns200(t *testing.T) {
	e := echo.New()
	e.Use(echoprometheus.NewMiddleware(namespace))
	e.GET("/metrics", echoprometheus.NewHandler())

	e.GET("/test", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 OK, got %d", rec.Code)
	}
	contentType := rec.Header().Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") {
		t.Errorf("expected Content-Type text/plain, got %q", contentType)
	}
	if rec.Body.String() == "" {
		t.Error("expected metrics in response body, got empty")
	}
}

// TestMetrics_QueueDepthGauge_Updates verifies the queue-depth gauge reports
// through /metrics under its renamed series.
func TestMetrics_QueueDepthGauge_Updates(t *testing.T) {
	QueueDepthGauge.Set(0)

	e := echo.New()
	e.GET("/metrics", echoprometheus.NewHandler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, namespace+"_queue_depth") {
		t.Fatalf("expected %s_queue_depth metric, not found in:\n%s", namespace, body)
	}

	QueueDepthGauge.Set(5)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	body = rec.Body.String()
	if !strings.Contains(body, namespace+"_queue_depth 5") {
		t.Logf("metrics output:\n%s", body)
		t.Error("expected queue depth gauge to show value 5")
	}

	QueueDepthGauge.Set(0)
}

// TestMetrics_Counters_Increment verifies the job-outcome counters
// registered by this package actually move when incremented, and surface
// under the browsercluster namespace on /metrics.
func TestMetrics_Counters_Increment(t *testing.T) {
	before := testutil.ToFloat64(JobsProcessedCounter)
	JobsProcessedCounter.Inc()
	after := testutil.ToFloat64(JobsProcessedCounter)
	if after != before+1 {
		t.Fatalf("expected JobsProcessedCounter to increment by 1, went from %v to %v", before, after)
	}

	e := echo.New()
	e.GET("/metrics", echoprometheus.NewHandler())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, name := range []string{
		namespace + "_jobs_processed_total",
		namespace + "_jobs_failed_total",
		namespace + "_jobs_retried_total",
		namespace + "_duplicate_urls_dropped_total",
		namespace + "_domain_delay_waits_total",
		namespace + "_worker_pool_size",
		namespace + "_active_workers",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s to be exposed on /metrics", name)
		}
	}
}

// TestMetrics_Accessible_DuringShutdown verifies the readiness-gate
// middleware pattern app.go uses still carves out /metrics (and health
// endpoints) while the rest of the API is draining.
func TestMetrics_Accessible_DuringShutdown(t *testing.T) {
	e := echo.New()
	ready := atomic.NewBool(false)

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !ready.Load() {
				p := c.Request().URL.Path
				if p != "/healthz" && p != "/readyz" && p != "/metrics" {
					return c.NoContent(http.StatusServiceUnavailable)
				}
			}
			return next(c)
		}
	})

	e.GET("/metrics", func(c echo.Context) error {
		return c.String(http.StatusOK, "metrics")
	})
	e.POST("/jobs/queue", func(c echo.Context) error {
		return c.NoContent(http.StatusAccepted)
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected /metrics to return 200 during shutdown, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/jobs/queue", strings.NewReader("test"))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected /jobs/queue to return 503 during shutdown, got %d", rec.Code)
	}
}
