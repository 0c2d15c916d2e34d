package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the counters and timings published by the migration runner.
type Metrics struct {
	applied  *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	applied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "actinodb_migrations_applied_total",
		Help: "Total upgrade scripts applied, by script.",
	}, []string{"script"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "actinodb_migration_failures_total",
		Help: "Total migration failures by type.",
	}, []string{"type"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "actinodb_migration_duration_seconds",
		Help:    "Wall-clock time per upgrade script.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"script"})

	applied = registerCounterVec(registerer, applied)
	failures = registerCounterVec(registerer, failures)
	duration = registerHistogramVec(registerer, duration)

	return &Metrics{
		applied:  applied,
		failures: failures,
		duration: duration,
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) IncApplied(script string) {
	if m == nil || m.applied == nil {
		return
	}
	m.applied.WithLabelValues(script).Inc()
}

func (m *Metrics) IncFailure(kind string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveApply(script string, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(script).Observe(elapsed.Seconds())
}

func registerCounterVec(registerer prometheus.Registerer, counter *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return counter
}

func registerHistogramVec(registerer prometheus.Registerer, histogram *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := registerer.Register(histogram); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return histogram
}
