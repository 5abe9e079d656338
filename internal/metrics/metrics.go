package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds booking, payment and prediction review metrics
type Metrics struct {
	Reservations     *prometheus.CounterVec
	Cancellations    *prometheus.CounterVec
	Payments         *prometheus.CounterVec
	WebhookEvents    *prometheus.CounterVec
	ReconciledSlots  prometheus.Counter
	UnindexedBooking prometheus.Gauge
	Predictions      *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New registers all metrics on reg. Pass prometheus.NewRegistry() in tests.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Slot reservation attempts by result",
		}, []string{"result"}),
		Cancellations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Appointment cancellations by actor and result",
		}, []string{"actor", "result"}),
		Payments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirmations_total",
			Help:      "Payment confirmations by channel and result",
		}, []string{"via", "result"}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Verified payment webhook events by type",
		}, []string{"event"}),
		ReconciledSlots: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_slots_total",
			Help:      "Booked slots released by the reconciler because their appointment was cancelled",
		}),
		UnindexedBooking: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unindexed_appointments",
			Help:      "Active appointments without a booked slot row at the last reconcile run",
		}),
		Predictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_operations_total",
			Help:      "Prediction review operations by operation and result",
		}, []string{"op", "result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
	}
}

// NewNop returns metrics registered on a throwaway registry.
func NewNop() *Metrics {
	return New("test", prometheus.NewRegistry())
}
