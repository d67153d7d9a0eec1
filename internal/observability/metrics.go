package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SwapTransitions counts swap request transitions by action and outcome.
	SwapTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookswap_swap_transitions_total",
		Help: "Swap request transitions by action and result",
	}, []string{"action", "result"})

	// SwapRequestsCreated counts created requests by type.
	SwapRequestsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookswap_swap_requests_created_total",
		Help: "Swap and purchase requests created",
	}, []string{"type"})

	// MessagesPosted counts conversation messages by origin (user or system).
	MessagesPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookswap_messages_posted_total",
		Help: "Messages written to swap conversations",
	}, []string{"origin"})

	// RatingsAdded counts ratings by score.
	RatingsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookswap_ratings_added_total",
		Help: "Ratings added by score",
	}, []string{"score"})

	// CacheLookups counts cache-aside lookups by entity and result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookswap_cache_lookups_total",
		Help: "Cache lookups by entity and result (hit, miss, error)",
	}, []string{"entity", "result"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookswap_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookswap_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts WebSocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookswap_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookswap_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// RecordTransition counts one swap transition attempt.
func RecordTransition(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SwapTransitions.WithLabelValues(action, result).Inc()
}
