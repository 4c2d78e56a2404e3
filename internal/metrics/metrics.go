// Package metrics exposes the server's operational counters over the
// standard Prometheus text format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RoomsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "talkomatic_rooms_open",
		Help: "Number of rooms currently open, including empty rooms in their grace window.",
	})
	Participants = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "talkomatic_participants",
		Help: "Number of users currently in a room.",
	})
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "talkomatic_connected_clients",
		Help: "Number of open WebSocket connections.",
	})
	ActiveGames = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "talkomatic_games_active",
		Help: "Number of live game sessions by state.",
	}, []string{"state"})
	DeltasApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talkomatic_text_deltas_applied_total",
		Help: "Total text deltas applied to participant buffers.",
	})
	SweptRooms = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talkomatic_swept_rooms_total",
		Help: "Total rooms removed by the idle sweep.",
	})
	SweptGames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talkomatic_swept_games_total",
		Help: "Total game sessions removed by the idle sweep.",
	})
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talkomatic_rate_limited_total",
		Help: "Total client messages dropped by the per-connection rate limiter.",
	})
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		RoomsOpen,
		Participants,
		ConnectedClients,
		ActiveGames,
		DeltasApplied,
		SweptRooms,
		SweptGames,
		RateLimited,
	)
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
