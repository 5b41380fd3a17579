// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the evileye gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// RequestBuckets defines histogram buckets for request latencies, from
// 5ms to 10s.
var RequestBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route pattern.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evileye_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route pattern.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evileye_request_duration_seconds",
			Help:    "Request duration",
			Buckets: RequestBuckets,
		},
		[]string{"method", "route"},
	)

	// InFlightRequests tracks requests currently being served.
	InFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "evileye_requests_in_flight",
			Help: "Requests in flight",
		},
	)

	// AuthOutcomesTotal counts signature verification outcomes. Rejections
	// carry the failure reason; callers never see it.
	AuthOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evileye_auth_outcomes_total",
			Help: "Authentication outcomes",
		},
		[]string{"outcome", "reason"},
	)

	// NegotiationsTotal counts secret resolutions by strategy mode
	// (none, single, race) and result.
	NegotiationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evileye_negotiations_total",
			Help: "Secret negotiations",
		},
		[]string{"mode", "result"},
	)

	// OperationsTotal counts command and query invocations.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evileye_operations_total",
			Help: "Operation invocations",
		},
		[]string{"kind", "name", "status"},
	)

	// EventsTotal counts projected events by type and outcome.
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evileye_events_total",
			Help: "Projected events",
		},
		[]string{"type", "status"},
	)

	// EventLogPosition is the position of the last applied event.
	EventLogPosition = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "evileye_event_log_position",
			Help: "Event log position",
		},
	)

	// SchemaCompilationsTotal counts executor builds by outcome.
	SchemaCompilationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evileye_schema_compilations_total",
			Help: "Schema compilations",
		},
		[]string{"status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter,
	// by whether the key was a verified identity or a client address.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evileye_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"key"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		InFlightRequests,
		AuthOutcomesTotal,
		NegotiationsTotal,
		OperationsTotal,
		EventsTotal,
		EventLogPosition,
		SchemaCompilationsTotal,
		RateLimitRejectedTotal,
	)
}

// Status returns "ok" for a nil error and "error" otherwise.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
