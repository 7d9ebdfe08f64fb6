package metrics

import (
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_nodes_total",
			Help: "Number of tracked nodes by state",
		},
		[]string{"state"},
	)

	// Tracker verb metrics
	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_registrations_total",
			Help: "Total node registrations by outcome (accepted, rejected, reconnect, replace)",
		},
		[]string{"outcome"},
	)

	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_heartbeats_total",
			Help: "Total heartbeats by outcome (normal, duplicate, resync, shutdown)",
		},
		[]string{"outcome"},
	)

	UnregistrationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_unregistrations_total",
			Help: "Total clean node unregistrations",
		},
	)

	RegisterDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_register_duration_seconds",
			Help:    "Register handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	HeartbeatDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_heartbeat_duration_seconds",
			Help:    "Heartbeat handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Liveness metrics
	NodesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_nodes_expired_total",
			Help: "Total nodes expired by the liveness monitor",
		},
	)

	// Event bus metrics
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_events_published_total",
			Help: "Total events published by kind",
		},
		[]string{"kind"},
	)

	EventQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_event_queue_depth",
			Help: "Events waiting in the broker buffer",
		},
	)

	// Admin metrics
	ConfigUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_config_updates_total",
			Help: "Total runtime configuration updates by kind",
		},
		[]string{"kind"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_api_requests_total",
			Help: "Total API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(NodesByState)
	prometheus.MustRegister(RegistrationsTotal)
	prometheus.MustRegister(HeartbeatsTotal)
	prometheus.MustRegister(UnregistrationsTotal)
	prometheus.MustRegister(RegisterDuration)
	prometheus.MustRegister(HeartbeatDuration)
	prometheus.MustRegister(NodesExpiredTotal)
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(EventQueueDepth)
	prometheus.MustRegister(ConfigUpdatesTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// IncNodeState bumps the gauge for a node entering the given state.
func IncNodeState(state types.NodeState) {
	NodesByState.WithLabelValues(string(state)).Inc()
}

// DecNodeState drops the gauge for a node leaving the given state.
func DecNodeState(state types.NodeState) {
	NodesByState.WithLabelValues(string(state)).Dec()
}

// TransitionNodeState moves one node between state gauges.
func TransitionNodeState(from, to types.NodeState) {
	if from == to {
		return
	}
	DecNodeState(from)
	IncNodeState(to)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
