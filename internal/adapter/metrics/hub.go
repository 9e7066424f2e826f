package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics holds Prometheus metrics for the broadcast hub and its sessions.
type HubMetrics struct {
	ActiveSessions   prometheus.Gauge
	SessionsOpened   prometheus.Counter
	SessionsRejected prometheus.Counter
	SessionsPruned   prometheus.Counter
	Deliveries       *prometheus.CounterVec
	NotifyDuration   prometheus.Histogram
	PruneDuration    prometheus.Histogram
}

// Delivery outcomes used as the "outcome" label.
const (
	OutcomeDelivered = "delivered"
	OutcomeFiltered  = "filtered"
	OutcomeFailed    = "failed"
)

// NewHubMetrics creates and registers hub metrics on the given registry.
func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_sessions",
			Help:      "Number of sessions currently registered in the hub.",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "sessions_opened_total",
			Help:      "Total number of sessions registered.",
		}),
		SessionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "sessions_rejected_total",
			Help:      "Total number of registrations rejected because the hub was full.",
		}),
		SessionsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "sessions_pruned_total",
			Help:      "Total number of sessions removed by a prune cycle.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "deliveries_total",
			Help:      "Per-session delivery attempts by outcome.",
		}, []string{"outcome"}),
		NotifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "notify_duration_seconds",
			Help:      "Time spent fanning one event out to all sessions.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2.5},
		}),
		PruneDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "prune_duration_seconds",
			Help:      "Time spent in one prune cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.ActiveSessions, m.SessionsOpened, m.SessionsRejected, m.SessionsPruned,
		m.Deliveries, m.NotifyDuration, m.PruneDuration)
	return m
}
