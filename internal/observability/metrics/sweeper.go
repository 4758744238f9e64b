package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweeperMetrics captures the subscription expiry sweeper health.
type SweeperMetrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	expired  prometheus.Counter
	skipped  prometheus.Counter
}

var (
	sweeperOnce    sync.Once
	sweeperMetrics *SweeperMetrics
)

// Sweeper returns the process-wide sweeper metrics registered on the default registry.
func Sweeper() *SweeperMetrics {
	sweeperOnce.Do(func() {
		sweeperMetrics = NewSweeperMetrics(prometheus.DefaultRegisterer, Config{})
	})
	return sweeperMetrics
}

func NewSweeperMetrics(registerer prometheus.Registerer, cfg Config) *SweeperMetrics {
	labels := constLabels(cfg)
	m := &SweeperMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "controlplane_sweeper_runs_total",
			Help:        "Expiry sweeper runs by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "controlplane_sweeper_run_duration_seconds",
			Help:        "Expiry sweeper run duration.",
			ConstLabels: labels,
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "controlplane_sweeper_expired_subscriptions_total",
			Help:        "Subscriptions moved to expired by the sweeper.",
			ConstLabels: labels,
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "controlplane_sweeper_lock_skipped_total",
			Help:        "Sweeper runs skipped because another replica held the lock.",
			ConstLabels: labels,
		}),
	}
	m.runs, _ = registerOrExisting(registerer, m.runs)
	m.duration, _ = registerOrExisting(registerer, m.duration)
	m.expired, _ = registerOrExisting(registerer, m.expired)
	m.skipped, _ = registerOrExisting(registerer, m.skipped)
	return m
}

func (m *SweeperMetrics) ObserveRun(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome(err == nil, "ok", "error")).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *SweeperMetrics) AddExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *SweeperMetrics) IncLockSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}
