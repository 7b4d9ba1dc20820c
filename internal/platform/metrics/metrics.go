package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the HTTP surface and the entity store.
type Metrics struct {
	// Request latencies by route and method
	RequestLatency *prometheus.HistogramVec

	// Request counts by route, method and status class
	RequestsTotal *prometheus.CounterVec

	DocumentsCreated prometheus.Counter
	DocumentsDeleted prometheus.Counter

	// Cross-principal access attempts rejected at the storage boundary
	AccessDenials prometheus.Counter
}

// New creates a Metrics instance with all platform metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iris_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and method",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method"}),

		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_http_requests_total",
			Help: "Total HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),

		DocumentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iris_documents_created_total",
			Help: "Total documents accepted for processing",
		}),

		DocumentsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iris_documents_deleted_total",
			Help: "Total documents deleted with their subtrees",
		}),

		AccessDenials: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iris_access_denials_total",
			Help: "Total requests rejected because the entity belongs to another principal",
		}),
	}
}

// ObserveRequest records one handled request.
func (m *Metrics) ObserveRequest(route, method, status string, d time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(route, method).Observe(d.Seconds())
		m.RequestsTotal.WithLabelValues(route, method, status).Inc()
	}
}

// IncrementDocumentsCreated records an accepted upload.
func (m *Metrics) IncrementDocumentsCreated() {
	if m != nil {
		m.DocumentsCreated.Inc()
	}
}

// IncrementDocumentsDeleted records a document deletion.
func (m *Metrics) IncrementDocumentsDeleted() {
	if m != nil {
		m.DocumentsDeleted.Inc()
	}
}

// IncrementAccessDenials records a cross-principal rejection.
func (m *Metrics) IncrementAccessDenials() {
	if m != nil {
		m.AccessDenials.Inc()
	}
}
