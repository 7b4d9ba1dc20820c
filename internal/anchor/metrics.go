package anchor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the anchor protocol.
type Metrics struct {
	// Outcomes by result: anchored, already_anchored, digest_mismatch,
	// ledger_unavailable, timeout, busy
	Outcome *prometheus.CounterVec

	// End-to-end anchor latency including confirmation wait
	AnchorLatency prometheus.Histogram

	// Confirmation wait alone, the dominant latency source
	ConfirmLatency prometheus.Histogram

	// Verification lookups by result: found, not_found, unavailable
	VerifyTotal *prometheus.CounterVec
}

// NewMetrics registers all anchor protocol metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Outcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_anchor_outcomes_total",
			Help: "Total anchor attempts by outcome",
		}, []string{"outcome"}),

		AnchorLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "iris_anchor_duration_seconds",
			Help:    "Duration of full anchor operations including confirmation",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		ConfirmLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "iris_anchor_confirm_duration_seconds",
			Help:    "Duration of the ledger confirmation wait",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		VerifyTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_verify_total",
			Help: "Total verification lookups by result",
		}, []string{"result"}),
	}
}

// IncrementOutcome records one anchor attempt result.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Outcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveAnchorLatency records a full anchor duration.
func (m *Metrics) ObserveAnchorLatency(d time.Duration) {
	if m != nil {
		m.AnchorLatency.Observe(d.Seconds())
	}
}

// ObserveConfirmLatency records a confirmation wait duration.
func (m *Metrics) ObserveConfirmLatency(d time.Duration) {
	if m != nil {
		m.ConfirmLatency.Observe(d.Seconds())
	}
}

// IncrementVerify records one verification lookup result.
func (m *Metrics) IncrementVerify(result string) {
	if m != nil {
		m.VerifyTotal.WithLabelValues(result).Inc()
	}
}
