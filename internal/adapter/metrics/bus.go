package metrics

import "github.com/prometheus/client_golang/prometheus"

// BusMetrics holds Prometheus metrics for the event bus listener and publisher.
type BusMetrics struct {
	MessagesReceived prometheus.Counter
	DecodeFailures   prometheus.Counter
	GroupFetchErrors prometheus.Counter
	MessagesHandled  *prometheus.CounterVec
	Published        *prometheus.CounterVec
}

// NewBusMetrics creates and registers bus metrics on the given registry.
func NewBusMetrics(reg prometheus.Registerer) *BusMetrics {
	m := &BusMetrics{
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "messages_received_total",
			Help:      "Total number of messages read from the event topic.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "decode_failures_total",
			Help:      "Total number of messages skipped because they could not be decoded.",
		}),
		GroupFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "group_fetch_errors_total",
			Help:      "Total number of messages skipped because the group list was unavailable.",
		}),
		MessagesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "messages_handled_total",
			Help:      "Total number of envelopes handed to the notifier, by action.",
		}, []string{"action"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "messages_published_total",
			Help:      "Total number of envelopes published, by action.",
		}, []string{"action"}),
	}

	reg.MustRegister(m.MessagesReceived, m.DecodeFailures, m.GroupFetchErrors, m.MessagesHandled, m.Published)
	return m
}
