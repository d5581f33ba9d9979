package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event outcomes recorded by Metrics.
const (
	outcomeApplied = "applied"
	outcomeStale   = "stale"
	outcomeForeign = "foreign"
	outcomeIgnored = "ignored"
)

// Metrics holds the Prometheus collectors for sessions.
type Metrics struct {
	events          *prometheus.CounterVec
	gaps            prometheus.Counter
	active          prometheus.Gauge
	edgeTransitions *prometheus.CounterVec
	applyDuration   prometheus.Histogram
	truncations     prometheus.Counter
	archivedStages  *prometheus.CounterVec
}

// NewMetrics registers session collectors on reg. A nil reg uses a private
// registry so tests and embedded callers never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iterview",
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Backend events seen by sessions, by kind and outcome",
		}, []string{"kind", "outcome"}),
		gaps: f.NewCounter(prometheus.CounterOpts{
			Namespace: "iterview",
			Subsystem: "session",
			Name:      "sequence_gaps_total",
			Help:      "Events that skipped one or more sequence numbers",
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "iterview",
			Subsystem: "session",
			Name:      "active",
			Help:      "Open visualization sessions",
		}),
		edgeTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iterview",
			Subsystem: "edge",
			Name:      "transitions_total",
			Help:      "Edge flow state transitions, by edge and target state",
		}, []string{"edge", "to"}),
		applyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "iterview",
			Subsystem: "session",
			Name:      "apply_duration_seconds",
			Help:      "Time to fold one event into session state",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8), // 10µs to ~160ms
		}),
		truncations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "iterview",
			Subsystem: "thinking",
			Name:      "truncations_total",
			Help:      "Stream events that caused transcript truncation",
		}),
		archivedStages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iterview",
			Subsystem: "thinking",
			Name:      "archived_stages_total",
			Help:      "Stages moved into transcript history, by stage",
		}, []string{"stage"}),
	}
}
