package metrics

import (
	"time"

	"appstore-receipt-api/internal/appstore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for App Store verification
type Metrics struct {
	Attempts    *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Fallbacks   prometheus.Counter
	RateLimited *prometheus.CounterVec
}

// New creates the metrics and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "appstore_verify_attempts_total",
			Help: "verifyReceipt attempts by environment and outcome",
		}, []string{"environment", "outcome"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appstore_verify_duration_seconds",
			Help:    "verifyReceipt attempt latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5},
		}, []string{"environment"}),
		Fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "appstore_environment_fallbacks_total",
			Help: "Production attempts answered 21007 and retried against sandbox",
		}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_api_rate_limited_total",
			Help: "Verify requests rejected by the per-project rate limit",
		}, []string{"project_id"}),
	}
}

// ObserveAttempt implements appstore.Observer
func (m *Metrics) ObserveAttempt(env appstore.Environment, outcome string, elapsed time.Duration) {
	m.Attempts.WithLabelValues(string(env), outcome).Inc()
	m.Duration.WithLabelValues(string(env)).Observe(elapsed.Seconds())
}

// ObserveFallback implements appstore.Observer
func (m *Metrics) ObserveFallback() {
	m.Fallbacks.Inc()
}

// IncrementRateLimited counts a rejected verify request
func (m *Metrics) IncrementRateLimited(projectID string) {
	m.RateLimited.WithLabelValues(projectID).Inc()
}

var _ appstore.Observer = (*Metrics)(nil)
