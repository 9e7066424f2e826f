package metrics

import "github.com/prometheus/client_golang/prometheus"

// Breaker state values exported by the state gauge.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// BreakerMetrics tracks circuit breakers by component ("redis", "postgres").
type BreakerMetrics struct {
	State        *prometheus.GaugeVec
	StateChanges *prometheus.CounterVec
}

func NewBreakerMetrics(reg prometheus.Registerer) *BreakerMetrics {
	m := &BreakerMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Current breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"component"}),
		StateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state_changes_total",
			Help:      "Total number of breaker state transitions by target state.",
		}, []string{"component", "state"}),
	}

	reg.MustRegister(m.State, m.StateChanges)
	return m
}

// Record notes a transition of component's breaker into state.
func (m *BreakerMetrics) Record(component, state string, value float64) {
	if m == nil {
		return
	}
	m.StateChanges.WithLabelValues(component, state).Inc()
	m.State.WithLabelValues(component).Set(value)
}
