// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendRequestDuration tracks backend call duration.
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "table", "status"},
	)

	// BackendRequestsTotal tracks total backend calls.
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Total backend requests",
		},
		[]string{"operation", "table", "status"},
	)

	// MessagesSentTotal tracks messages sent, by outcome.
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"status"},
	)

	// MessageLoadsTotal tracks initial conversation loads, by outcome.
	MessageLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_loads_total",
			Help: "Total initial message loads",
		},
		[]string{"status"},
	)

	// RealtimeEventsTotal tracks change-feed events, by disposition.
	RealtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Total realtime change-feed events received",
		},
		[]string{"disposition"},
	)

	// RealtimeSubscriptionsActive tracks open change-feed subscriptions.
	RealtimeSubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscriptions_active",
			Help: "Number of active change-feed subscriptions",
		},
	)

	// SearchesTotal tracks executed listing searches.
	SearchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "searches_total",
			Help: "Total listing searches executed",
		},
	)
)

// RecordBackendRequest records metrics for one backend call.
func RecordBackendRequest(operation, table, status string, duration float64) {
	BackendRequestDuration.WithLabelValues(operation, table, status).Observe(duration)
	BackendRequestsTotal.WithLabelValues(operation, table, status).Inc()
}

// RecordSend records the outcome of a message send.
func RecordSend(status string) {
	MessagesSentTotal.WithLabelValues(status).Inc()
}

// RecordRealtimeEvent records the disposition of a change-feed event.
func RecordRealtimeEvent(disposition string) {
	RealtimeEventsTotal.WithLabelValues(disposition).Inc()
}
