package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/condo-service/internal/domain"
	"github.com/spec-kit/condo-service/internal/events"
)

// Metrics holds the Prometheus collectors of the service on a private registry.
type Metrics struct {
	registry           *prometheus.Registry
	requests           *prometheus.CounterVec
	duration           *prometheus.HistogramVec
	errors             *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	eventsDropped      *prometheus.CounterVec
}

// NewMetrics registers all collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "HTTP error responses by error code.",
		}, []string{"route", "method", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_transitions_total",
			Help: "Applied ticket status transitions.",
		}, []string{"from", "to"}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_side_effect_failures_total",
			Help: "Failed or panicking side-effect handlers.",
		}, []string{"handler"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_events_dropped_total",
			Help: "Events dropped because the dispatch queue was full.",
		}, []string{"event_type"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.errors,
		m.transitions,
		m.sideEffectFailures,
		m.eventsDropped,
	)
	return m
}

// Registry exposes the registry for additional exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// TicketTransition counts one applied status change.
func (m *Metrics) TicketTransition(from, to domain.TicketStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// EventDropped counts an event the dispatcher could not queue.
func (m *Metrics) EventDropped(eventType events.EventType) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(string(eventType)).Inc()
}

// HandlerFailed counts a side-effect handler failure.
func (m *Metrics) HandlerFailed(handler string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(handler).Inc()
}
