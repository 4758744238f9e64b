package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSweeperMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSweeperMetrics(reg, Config{ServiceName: "controlplane", Environment: "test"})

	m.ObserveRun(10*time.Millisecond, nil)
	m.ObserveRun(20*time.Millisecond, errors.New("db down"))
	m.AddExpired(3)
	m.AddExpired(0)
	m.IncLockSkipped()

	if got := testutil.ToFloat64(m.runs.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 ok run, got %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.expired); got != 3 {
		t.Fatalf("expected 3 expired, got %v", got)
	}
	if got := testutil.ToFloat64(m.skipped); got != 1 {
		t.Fatalf("expected 1 skipped, got %v", got)
	}
}

func TestSweeperMetricsReuseRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewSweeperMetrics(reg, Config{})
	second := NewSweeperMetrics(reg, Config{})

	first.AddExpired(2)
	if got := testutil.ToFloat64(second.expired); got != 2 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := newHTTPMetrics(reg, Config{})
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/api/public/plans/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/public/plans/", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/public/plans/", http.MethodGet, "200")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}
