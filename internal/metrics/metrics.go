// Package metrics provides Prometheus instrumentation for the matchmaking
// and relay engine: gauges for connections, queue depth, and live rooms,
// counters for matches, relayed messages, and abuse reports, and a
// histogram for match search latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "veilchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// QueueSize tracks queue depth, labeled by partition ("male:any", ...).
	QueueSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "veilchat_queue_size",
		Help: "Current number of users waiting, per gender:preference partition",
	}, []string{"partition"})

	// ActiveRooms tracks the number of live chat rooms.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "veilchat_active_rooms",
		Help: "Current number of chat rooms not yet reclaimed",
	})

	// MatchesTotal counts successful pairings, labeled by the active
	// requester's preference kind ("filtered" or "any").
	MatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "veilchat_matches_total",
		Help: "Total number of successful pairings",
	}, []string{"preference"})

	// MatchSearchDuration records how long a FindMatch call took.
	MatchSearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "veilchat_match_search_duration_seconds",
		Help:    "Latency of a single match search over the queue partitions",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// MessagesRelayed counts chat messages relayed between room members.
	MessagesRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veilchat_messages_relayed_total",
		Help: "Total number of chat messages relayed",
	})

	// ReportsTotal counts abuse reports, labeled by outcome.
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "veilchat_reports_total",
		Help: "Total number of abuse reports filed",
	}, []string{"outcome"}) // outcome = "recorded", "ban"

	// QuotaRejections counts join_queue attempts rejected by the daily limit.
	QuotaRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veilchat_quota_rejections_total",
		Help: "Total join_queue attempts rejected by the daily filtered-match limit",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		QueueSize,
		ActiveRooms,
		MatchesTotal,
		MatchSearchDuration,
		MessagesRelayed,
		ReportsTotal,
		QuotaRejections,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
