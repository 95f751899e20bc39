package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts events accepted onto a lane.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidepool_events_published_total",
		Help: "Total number of events published, by lane and event type",
	}, []string{"lane", "event_type"})

	// EventsDispatched counts events fully delivered to all handlers.
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidepool_events_dispatched_total",
		Help: "Total number of events dispatched to handlers, by lane and event type",
	}, []string{"lane", "event_type"})

	// EventLaneDepth is the current buffered depth per lane.
	EventLaneDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tidepool_event_lane_depth",
		Help: "Number of events currently buffered in each lane",
	}, []string{"lane"})

	// EventHandlerFailures counts isolated handler failures.
	EventHandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidepool_event_handler_failures_total",
		Help: "Total number of event handler failures, by handler and event type",
	}, []string{"handler", "event_type"})

	// EventHandlerDuration records handler execution latency.
	EventHandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tidepool_event_handler_duration_seconds",
		Help:    "Event handler execution time in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler"})

	// CounterToggles counts toggle operations against the counter cache.
	CounterToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidepool_counter_toggles_total",
		Help: "Total number of counter toggle operations, by metric and result",
	}, []string{"metric", "result"})

	// CommentCacheHits counts comment read-model cache hits and misses.
	CommentCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidepool_comment_cache_requests_total",
		Help: "Comment cache lookups, by outcome (hit, miss, bypass)",
	}, []string{"outcome"})

	// NotificationsDispatched counts notification deliveries by strategy.
	NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidepool_notifications_dispatched_total",
		Help: "Total notifications dispatched, by strategy and result",
	}, []string{"strategy", "result"})

	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidepool_redis_error_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tidepool_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ActiveWebSockets is the gauge of open notification sockets.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tidepool_websocket_connections_total",
		Help: "Total number of active notification WebSocket connections",
	})

	// WebSocketDrops counts messages dropped on the way to a slow or closed
	// notification socket.
	WebSocketDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidepool_websocket_drops_total",
		Help: "Messages dropped per notification WebSocket client, by reason",
	}, []string{"reason"})

	// ReconciliationDrift counts counters found drifted by reconciliation.
	ReconciliationDrift = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidepool_reconciliation_drift_total",
		Help: "Counters found drifted from authoritative rows, by metric",
	}, []string{"metric"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
