package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records store latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "piazza_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// PostInteractions counts accepted likes, dislikes and comments.
	PostInteractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piazza_post_interactions_total",
		Help: "Total number of accepted post interactions",
	}, []string{"action"})

	// PostInteractionsRejected counts interactions refused because the post expired.
	PostInteractionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piazza_post_interactions_rejected_total",
		Help: "Interactions rejected on expired posts",
	}, []string{"action"})

	// PostsExpired counts posts transitioned to Expired by the sweeper.
	PostsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "piazza_posts_expired_total",
		Help: "Posts marked expired by the background sweeper",
	})

	// WebSocketEventsTotal counts feed events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piazza_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piazza_websocket_backpressure_drops_total",
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
