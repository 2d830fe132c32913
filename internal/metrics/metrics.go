// Package metrics exposes Prometheus instruments for the discovery engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "caus"

type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	tests    *prometheus.CounterVec
	edges    prometheus.Histogram
	models   prometheus.Histogram
}

// New registers the instruments on reg. Use prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Discover and Estimate requests by outcome.",
		}, []string{"op", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Wall time of Discover and Estimate requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}, []string{"op"}),
		tests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ci_tests_total",
			Help:      "Conditional independence tests run, by pipeline phase.",
		}, []string{"phase"}),
		edges: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovered_edges",
			Help:      "Directed edges per discovered graph.",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		}),
		models: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimated_models",
			Help:      "Linear models fitted per Estimate request.",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		}),
	}
}

// ObserveRequest records one finished request. outcome is "ok" or an error
// kind.
func (m *Metrics) ObserveRequest(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// TestsRun adds n independence tests to phase ("skeleton" or "mci").
func (m *Metrics) TestsRun(phase string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tests.WithLabelValues(phase).Add(float64(n))
}

func (m *Metrics) ObserveEdges(n int) {
	if m == nil {
		return
	}
	m.edges.Observe(float64(n))
}

func (m *Metrics) ObserveModels(n int) {
	if m == nil {
		return
	}
	m.models.Observe(float64(n))
}

// Requests exposes the request counter, mostly for tests.
func (m *Metrics) Requests() *prometheus.CounterVec { return m.requests }

// Tests exposes the test counter, mostly for tests.
func (m *Metrics) Tests() *prometheus.CounterVec { return m.tests }
