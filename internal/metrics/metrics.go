// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "restaurant"

// Reservation outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	// ReservationsTotal counts booking attempts by outcome.
	ReservationsTotal *prometheus.CounterVec

	// CancellationsTotal counts reservations moved to CANCELLED.
	CancellationsTotal prometheus.Counter

	// AvailabilityChecks counts read-only availability queries.
	AvailabilityChecks prometheus.Counter

	// TokensIssued counts tokens signed, by token type.
	TokensIssued *prometheus.CounterVec

	// AuthFailures counts rejected sign-in and refresh attempts by reason.
	AuthFailures *prometheus.CounterVec

	// EventsPublished counts broker publishes by result.
	EventsPublished *prometheus.CounterVec

	// HTTPRequests counts served requests.
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration observes request latency.
	HTTPDuration *prometheus.HistogramVec
}

// New creates a private registry with process and Go collectors and
// registers the service metrics on it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ReservationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reservations_total",
				Help:      "Reservation attempts by outcome",
			},
			[]string{"outcome"},
		),

		CancellationsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reservation_cancellations_total",
				Help:      "Reservations cancelled",
			},
		),

		AvailabilityChecks: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "availability_checks_total",
				Help:      "Availability checks served",
			},
		),

		TokensIssued: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_issued_total",
				Help:      "JWTs issued by type",
			},
			[]string{"type"},
		),

		AuthFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Rejected authentication attempts by reason",
			},
			[]string{"reason"},
		),

		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Reservation events published to the broker by result",
			},
			[]string{"result"},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),

		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// IncReservation increments the booking counter for an outcome.
func (m *Metrics) IncReservation(outcome string) {
	if m == nil {
		return
	}
	m.ReservationsTotal.WithLabelValues(outcome).Inc()
}

// IncCancellation increments the cancellation counter.
func (m *Metrics) IncCancellation() {
	if m == nil {
		return
	}
	m.CancellationsTotal.Inc()
}

// IncAvailabilityCheck increments the availability counter.
func (m *Metrics) IncAvailabilityCheck() {
	if m == nil {
		return
	}
	m.AvailabilityChecks.Inc()
}

// IncTokenIssued increments the issued counter for a token type.
func (m *Metrics) IncTokenIssued(tokenType string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(tokenType).Inc()
}

// IncAuthFailure increments the auth failure counter.
func (m *Metrics) IncAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// IncEventPublished records the result of a broker publish.
func (m *Metrics) IncEventPublished(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(result).Inc()
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}
