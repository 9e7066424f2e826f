package broadcast

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultPruneInterval = 10 * time.Second

type MonitorState int32

const (
	MonitorIdle MonitorState = iota
	MonitorPruning
)

func (s MonitorState) String() string {
	switch s {
	case MonitorIdle:
		return "idle"
	case MonitorPruning:
		return "pruning"
	default:
		return "unknown"
	}
}

// Monitor prunes the hub on a fixed period.
type Monitor struct {
	hub      *Hub
	clock    clockwork.Clock
	interval time.Duration
	state    atomic.Int32
}

func NewMonitor(hub *Hub, clock clockwork.Clock, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	return &Monitor{hub: hub, clock: clock, interval: interval}
}

func (m *Monitor) State() MonitorState {
	return MonitorState(m.state.Load())
}

// Run prunes once per interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("Health monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Health monitor stopped")
			return
		case <-ticker.Chan():
			m.Tick()
		}
	}
}

// Tick runs a single prune cycle.
func (m *Monitor) Tick() PruneReport {
	m.state.Store(int32(MonitorPruning))
	defer m.state.Store(int32(MonitorIdle))

	report := m.hub.Prune()
	if report.Removed > 0 {
		slog.Info("Pruned dead sessions", "checked", report.Checked, "removed", report.Removed)
	} else {
		slog.Debug("Prune cycle complete", "checked", report.Checked)
	}
	return report
}
