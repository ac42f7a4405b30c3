// Package metrics provides Prometheus instrumentation for the notify
// server. It exposes gauges for stream connection counts, counters for feed
// and dispatch throughput, and a histogram for fan-out latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StreamConnections tracks the current number of open event streams,
	// labeled by transport: "sse" or "ws".
	StreamConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notify_stream_connections",
		Help: "Current number of open event stream connections",
	}, []string{"transport"})

	// FeedMessages counts change-feed messages received, labeled by channel.
	FeedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_feed_messages_total",
		Help: "Total number of change feed messages received",
	}, []string{"channel"})

	// DecodeErrors counts feed payloads that failed to decode, labeled by
	// reason: "unknown_channel", "unknown_operation", "malformed".
	DecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_decode_errors_total",
		Help: "Total number of feed payloads that failed to decode",
	}, []string{"reason"})

	// EventsDelivered counts events published to subscriber channels,
	// labeled by event type.
	EventsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_events_delivered_total",
		Help: "Total number of events published to subscriber channels",
	}, []string{"type"})

	// LaggedSessions counts stream sessions force-closed because their
	// receiver overflowed.
	LaggedSessions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_lagged_sessions_total",
		Help: "Total number of sessions closed due to receiver overflow",
	})

	// DispatchLatency records how long fanning out one feed message to all
	// recipients takes, in seconds.
	DispatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notify_dispatch_latency_seconds",
		Help:    "Fan-out latency per feed message in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
	})
)

func init() {
	prometheus.MustRegister(
		StreamConnections,
		FeedMessages,
		DecodeErrors,
		EventsDelivered,
		LaggedSessions,
		DispatchLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
