package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

// Relay latency buckets in seconds; agent calls regularly take whole
// seconds, so the tail extends well past typical HTTP histogram defaults.
var relayBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

var (
	// EventsTotal counts inbound platform events by kind.
	EventsTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "zrelay_events_total",
			Help: "Inbound Slack events dispatched to the bot",
		},
		[]string{"type"},
	)

	// RelayRequestsTotal counts agent calls by outcome: "ok",
	// "remote_error" or "transport_error".
	RelayRequestsTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "zrelay_relay_requests_total",
			Help: "Agent relay calls by outcome",
		},
		[]string{"outcome"},
	)

	// RelayDuration observes wall time of agent calls.
	RelayDuration = promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zrelay_relay_duration_seconds",
			Help:    "Agent relay call duration in seconds",
			Buckets: relayBuckets,
		},
	)

	// SessionsSweptTotal counts sessions removed by the periodic sweep.
	SessionsSweptTotal = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "zrelay_sessions_swept_total",
			Help: "Sessions removed by expiry sweeps",
		},
	)
)

// RegisterSessionGauge exposes the live session count as a gauge. Call
// once at startup with the store's Size method.
func RegisterSessionGauge(size func() int) {
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "zrelay_active_sessions",
			Help: "Sessions currently held in the store",
		},
		func() float64 { return float64(size()) },
	))
}

// Handler returns the scrape endpoint mounted on the ops router.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
