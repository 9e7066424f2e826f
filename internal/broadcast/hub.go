package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/grove/internal/adapter/metrics"
	"github.com/pscheid92/grove/internal/domain"
	"golang.org/x/sync/errgroup"
)

var (
	ErrHubFull   = errors.New("hub is at session capacity")
	ErrHubClosed = errors.New("hub is closed")
)

const (
	DefaultBufferSize = 10
	DefaultWorkers    = 64
)

// Filter decides whether a session may receive the frame being delivered.
// It runs concurrently for different sessions and must be safe for that.
type Filter func(ctx context.Context, s *Session) bool

// DeliveryReport summarizes one Notify call.
type DeliveryReport struct {
	Candidates int
	Eligible   int
	Delivered  int
	Failed     int
}

// PruneReport summarizes one Prune call.
type PruneReport struct {
	Checked int
	Removed int
}

type Options struct {
	BufferSize  int // per-session channel capacity
	MaxSessions int // zero means unlimited
	Workers     int // concurrent per-session deliveries within one Notify
	Clock       clockwork.Clock
	Metrics     *metrics.HubMetrics
}

// Hub owns the set of live sessions for this process.
type Hub struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	closed   bool

	// notifyMu orders Notify calls so each session sees frames in call order.
	notifyMu sync.Mutex

	bufferSize  int
	maxSessions int
	workers     int
	clock       clockwork.Clock
	metrics     *metrics.HubMetrics
}

func NewHub(opts Options) *Hub {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Hub{
		sessions:    make(map[uuid.UUID]*Session),
		bufferSize:  opts.BufferSize,
		maxSessions: opts.MaxSessions,
		workers:     opts.Workers,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
	}
}

// Register adds a session for identity and queues the "connected" comment so
// the client can confirm the stream before any event arrives.
func (h *Hub) Register(identity domain.UserID) (*Session, error) {
	s := newSession(identity, h.bufferSize, h.clock.Now())
	// Queued before the session is visible to Notify.
	_ = s.Send(CommentFrame(CommentConnected))

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	if h.maxSessions > 0 && len(h.sessions) >= h.maxSessions {
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.SessionsRejected.Inc()
		}
		slog.Warn("Rejecting stream: hub at capacity", "user_id", identity, "max_sessions", h.maxSessions)
		return nil, ErrHubFull
	}
	h.sessions[s.ID] = s
	total := len(h.sessions)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SessionsOpened.Inc()
		h.metrics.ActiveSessions.Set(float64(total))
	}

	slog.Debug("Session registered", "session_id", s.ID, "user_id", identity, "total_sessions", total)
	return s, nil
}

// Unregister removes the session and closes its channel. It reports whether
// the session was still registered.
func (h *Hub) Unregister(id uuid.UUID) bool {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	total := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return false
	}

	s.close()
	if h.metrics != nil {
		h.metrics.ActiveSessions.Set(float64(total))
	}
	slog.Debug("Session unregistered", "session_id", id, "user_id", s.Identity, "total_sessions", total)
	return true
}

// Snapshot returns a copy of the registry.
func (h *Hub) Snapshot() []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Lookup returns the registered session with the given id.
func (h *Hub) Lookup(id uuid.UUID) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Notify delivers f to every registered session accepted by filter (all
// sessions when filter is nil). Sessions are handled concurrently and
// independently; a failed send only marks that session for the next prune.
func (h *Hub) Notify(ctx context.Context, f Frame, filter Filter) DeliveryReport {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	start := h.clock.Now()
	snapshot := h.Snapshot()

	var eligible, delivered, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(h.workers)

	for _, s := range snapshot {
		g.Go(func() error {
			if filter != nil && !filter(ctx, s) {
				return nil
			}
			eligible.Add(1)

			if err := s.Send(f); err != nil {
				failed.Add(1)
				slog.DebugContext(ctx, "Delivery failed, session left for prune", "session_id", s.ID, "user_id", s.Identity, "error", err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := DeliveryReport{
		Candidates: len(snapshot),
		Eligible:   int(eligible.Load()),
		Delivered:  int(delivered.Load()),
		Failed:     int(failed.Load()),
	}

	if h.metrics != nil {
		h.metrics.Deliveries.WithLabelValues(metrics.OutcomeDelivered).Add(float64(report.Delivered))
		h.metrics.Deliveries.WithLabelValues(metrics.OutcomeFailed).Add(float64(report.Failed))
		h.metrics.Deliveries.WithLabelValues(metrics.OutcomeFiltered).Add(float64(report.Candidates - report.Eligible))
		h.metrics.NotifyDuration.Observe(h.clock.Since(start).Seconds())
	}

	return report
}

// Prune pings every session in a snapshot and drops the ones that can no
// longer be delivered to. Sessions registered after the snapshot are kept.
func (h *Hub) Prune() PruneReport {
	start := h.clock.Now()
	snapshot := h.Snapshot()

	var dead []*Session
	for _, s := range snapshot {
		if !s.keepalive() {
			dead = append(dead, s)
		}
	}

	h.mu.Lock()
	removed := dead[:0]
	for _, s := range dead {
		if current, ok := h.sessions[s.ID]; ok && current == s {
			delete(h.sessions, s.ID)
			removed = append(removed, s)
		}
	}
	total := len(h.sessions)
	h.mu.Unlock()

	for _, s := range removed {
		s.close()
		slog.Debug("Pruned session", "session_id", s.ID, "user_id", s.Identity)
	}

	if h.metrics != nil {
		h.metrics.SessionsPruned.Add(float64(len(removed)))
		h.metrics.ActiveSessions.Set(float64(total))
		h.metrics.PruneDuration.Observe(h.clock.Since(start).Seconds())
	}

	return PruneReport{Checked: len(snapshot), Removed: len(removed)}
}

// Close unregisters every session and rejects further registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := h.sessions
	h.sessions = make(map[uuid.UUID]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	if h.metrics != nil {
		h.metrics.ActiveSessions.Set(0)
	}
	slog.Info("Hub closed", "disconnected_sessions", len(sessions))
}
