package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/grove/internal/adapter/metrics"
	"github.com/pscheid92/grove/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = clockwork.NewFakeClock()
	}
	h := NewHub(opts)
	t.Cleanup(h.Close)
	return h
}

// drain reads frames until the session channel is empty.
func drain(s *Session) []Frame {
	var out []Frame
	for {
		select {
		case f, ok := <-s.Frames():
			if !ok {
				return out
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func eventsOf(frames []Frame) []string {
	var out []string
	for _, f := range frames {
		if !f.IsComment() {
			out = append(out, string(f.Data))
		}
	}
	return out
}

func registryIDs(h *Hub) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, s := range h.Snapshot() {
		ids[s.ID.String()] = struct{}{}
	}
	return ids
}

func TestRegister_SendsConnectedFrame(t *testing.T) {
	h := newTestHub(t, Options{})

	s, err := h.Register(1)
	require.NoError(t, err)

	assert.Equal(t, domain.UserID(1), s.Identity)
	assert.Equal(t, 1, h.Len())

	frames := drain(s)
	require.Len(t, frames, 1)
	assert.Equal(t, CommentConnected, frames[0].Comment)
}

func TestRegister_ConnectedPrecedesConcurrentEvents(t *testing.T) {
	h := newTestHub(t, Options{BufferSize: 64})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.Notify(context.Background(), EventFrame("event", []byte("e")), nil)
			}
		}
	}()

	sessions := make([]*Session, 0, 200)
	for range 200 {
		s, err := h.Register(1)
		require.NoError(t, err)
		sessions = append(sessions, s)
	}
	close(stop)
	wg.Wait()

	for _, s := range sessions {
		frames := drain(s)
		require.NotEmpty(t, frames)
		assert.Equal(t, CommentConnected, frames[0].Comment)
	}
}

func TestRegister_UniqueSessionsPerConnection(t *testing.T) {
	h := newTestHub(t, Options{})

	a, err := h.Register(1)
	require.NoError(t, err)
	b, err := h.Register(1)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, h.Len())
}

func TestRegister_RejectsBeyondCapacity(t *testing.T) {
	reg := metrics.NewRegistry()
	m := metrics.NewHubMetrics(reg)
	h := newTestHub(t, Options{MaxSessions: 2, Metrics: m})

	_, err := h.Register(1)
	require.NoError(t, err)
	_, err = h.Register(2)
	require.NoError(t, err)

	_, err = h.Register(3)
	assert.ErrorIs(t, err, ErrHubFull)
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsRejected))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestRegister_AfterClose(t *testing.T) {
	h := newTestHub(t, Options{})
	h.Close()

	_, err := h.Register(1)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestUnregister_ClosesChannel(t *testing.T) {
	h := newTestHub(t, Options{})
	s, err := h.Register(1)
	require.NoError(t, err)

	assert.True(t, h.Unregister(s.ID))
	assert.False(t, h.Unregister(s.ID))
	assert.Equal(t, 0, h.Len())

	drain(s)
	_, ok := <-s.Frames()
	assert.False(t, ok)
}

func TestNotify_NilFilterReachesEveryone(t *testing.T) {
	h := newTestHub(t, Options{})
	a, _ := h.Register(1)
	b, _ := h.Register(2)

	report := h.Notify(context.Background(), EventFrame("event", []byte("1")), nil)

	assert.Equal(t, DeliveryReport{Candidates: 2, Eligible: 2, Delivered: 2}, report)
	assert.Equal(t, []string{"1"}, eventsOf(drain(a)))
	assert.Equal(t, []string{"1"}, eventsOf(drain(b)))
}

func TestNotify_FilterSelectsRecipients(t *testing.T) {
	h := newTestHub(t, Options{})
	a, _ := h.Register(1)
	b, _ := h.Register(2)

	onlyOne := func(_ context.Context, s *Session) bool { return s.Identity == 1 }
	report := h.Notify(context.Background(), EventFrame("event", []byte("x")), onlyOne)

	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 1, report.Eligible)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, []string{"x"}, eventsOf(drain(a)))
	assert.Empty(t, eventsOf(drain(b)))
}

func TestNotify_FullSessionDoesNotAffectOthers(t *testing.T) {
	h := newTestHub(t, Options{BufferSize: 2})
	slow, _ := h.Register(1) // holds "connected", one slot left
	fast, _ := h.Register(2)

	var received []string
	var failed int
	for _, payload := range []string{"a", "b", "c"} {
		report := h.Notify(context.Background(), EventFrame("event", []byte(payload)), nil)
		failed += report.Failed
		received = append(received, eventsOf(drain(fast))...)
	}

	assert.Equal(t, []string{"a", "b", "c"}, received)
	assert.Equal(t, 2, failed)
	assert.True(t, slow.Failed())
	assert.False(t, fast.Failed())
	assert.Equal(t, 2, h.Len(), "failed session stays registered until the next prune")
}

func TestNotify_SlowFilterDoesNotBlockOthers(t *testing.T) {
	h := newTestHub(t, Options{Workers: 4})
	_, _ = h.Register(1)
	fast, _ := h.Register(2)

	release := make(chan struct{})
	filter := func(ctx context.Context, s *Session) bool {
		if s.Identity == 1 {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return true
	}

	done := make(chan DeliveryReport, 1)
	go func() { done <- h.Notify(context.Background(), EventFrame("event", []byte("e")), filter) }()

	assert.Eventually(t, func() bool {
		for _, f := range drain(fast) {
			if !f.IsComment() {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "fast session should receive while the slow filter is still running")

	close(release)
	report := <-done
	assert.Equal(t, 2, report.Delivered)
}

func TestNotify_PreservesOrderPerSession(t *testing.T) {
	h := newTestHub(t, Options{BufferSize: 64, Workers: 8})
	sessions := make([]*Session, 5)
	for i := range sessions {
		sessions[i], _ = h.Register(domain.UserID(i))
	}

	var want []string
	for i := range 20 {
		payload := string(rune('a' + i))
		want = append(want, payload)
		h.Notify(context.Background(), EventFrame("event", []byte(payload)), nil)
	}

	for _, s := range sessions {
		assert.Equal(t, want, eventsOf(drain(s)))
	}
}

func TestNotify_ConcurrentCallersAllDelivered(t *testing.T) {
	h := newTestHub(t, Options{BufferSize: 256})
	s, _ := h.Register(1)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				h.Notify(context.Background(), EventFrame("event", nil), nil)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, drain(s), 101)
	assert.False(t, s.Failed())
}

func TestNotify_RecordsMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	m := metrics.NewHubMetrics(reg)
	h := newTestHub(t, Options{Metrics: m})
	_, _ = h.Register(1)
	_, _ = h.Register(2)

	h.Notify(context.Background(), EventFrame("event", []byte("e")), func(_ context.Context, s *Session) bool {
		return s.Identity == 2
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(metrics.OutcomeDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(metrics.OutcomeFiltered)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(metrics.OutcomeFailed)))
}

func TestPrune_RemovesFullSession(t *testing.T) {
	h := newTestHub(t, Options{BufferSize: 10})
	full, _ := h.Register(5)
	ok, _ := h.Register(6)

	for i := range 9 {
		require.NoError(t, full.Send(EventFrame("event", []byte{byte(i)})))
	}
	require.Equal(t, 10, full.Pending())

	report := h.Prune()

	assert.Equal(t, PruneReport{Checked: 2, Removed: 1}, report)
	_, present := h.Lookup(full.ID)
	assert.False(t, present)
	_, present = h.Lookup(ok.ID)
	assert.True(t, present)
}

func TestPrune_RemovesSessionFilledAfterEarlierPrune(t *testing.T) {
	h := newTestHub(t, Options{BufferSize: 10})
	s, _ := h.Register(1)

	require.Equal(t, PruneReport{Checked: 1, Removed: 0}, h.Prune())
	for range 8 {
		require.NoError(t, s.Send(EventFrame("event", nil)))
	}
	require.Equal(t, 10, s.Pending())

	assert.Equal(t, PruneReport{Checked: 1, Removed: 1}, h.Prune())
	_, present := h.Lookup(s.ID)
	assert.False(t, present)
}

func TestPrune_RemovesSessionThatStoppedReading(t *testing.T) {
	h := newTestHub(t, Options{BufferSize: 4})
	s, _ := h.Register(1)

	// connected + three pings fill the buffer; the fourth prune fails.
	for range 3 {
		require.Equal(t, 0, h.Prune().Removed)
	}
	assert.Equal(t, 1, h.Prune().Removed)
	_, present := h.Lookup(s.ID)
	assert.False(t, present)
}

func TestPrune_RemovesSessionThatFailedDelivery(t *testing.T) {
	h := newTestHub(t, Options{BufferSize: 1})
	s, _ := h.Register(1) // buffer already holds "connected"

	h.Notify(context.Background(), EventFrame("event", []byte("e")), nil)
	require.True(t, s.Failed())
	drain(s)

	h.Prune()
	assert.Equal(t, 0, h.Len())
}

func TestPrune_IsIdempotent(t *testing.T) {
	h := newTestHub(t, Options{BufferSize: 10})
	_, _ = h.Register(1)
	_, _ = h.Register(2)
	almostFull, _ := h.Register(3) // room for exactly two pings
	for range 7 {
		require.NoError(t, almostFull.Send(EventFrame("event", nil)))
	}
	dead, _ := h.Register(4)
	for range 9 {
		require.NoError(t, dead.Send(EventFrame("event", nil)))
	}

	h.Prune()
	first := registryIDs(h)
	h.Prune()
	second := registryIDs(h)

	assert.Len(t, first, 3)
	assert.Equal(t, first, second)
}

func TestPrune_ClosesRemovedSessions(t *testing.T) {
	h := newTestHub(t, Options{BufferSize: 1})
	s, _ := h.Register(1)

	h.Prune()

	drain(s)
	_, ok := <-s.Frames()
	assert.False(t, ok, "pruned session channel should be closed so its stream ends")
}

func TestClose_DisconnectsEveryone(t *testing.T) {
	h := newTestHub(t, Options{})
	a, _ := h.Register(1)
	b, _ := h.Register(2)

	h.Close()
	h.Close()

	assert.Equal(t, 0, h.Len())
	for _, s := range []*Session{a, b} {
		drain(s)
		_, ok := <-s.Frames()
		assert.False(t, ok)
	}
}
