package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/grove/internal/domain"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSessionFull   = errors.New("session buffer full")
)

// Session is one registered viewer: an identity and the bounded channel
// feeding its stream.
type Session struct {
	ID          uuid.UUID
	Identity    domain.UserID
	ConnectedAt time.Time

	mu       sync.Mutex
	outbound chan Frame
	closed   bool
	failed   bool
}

func newSession(identity domain.UserID, bufferSize int, now time.Time) *Session {
	return &Session{
		ID:          uuid.New(),
		Identity:    identity,
		ConnectedAt: now,
		outbound:    make(chan Frame, bufferSize),
	}
}

// Frames is the stream of frames for this session. It is closed when the
// session is unregistered or pruned.
func (s *Session) Frames() <-chan Frame {
	return s.outbound
}

// Send queues f without blocking. A full buffer fails the send and marks the
// session for removal by the next prune cycle.
func (s *Session) Send(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	select {
	case s.outbound <- f:
		return nil
	default:
		s.failed = true
		return ErrSessionFull
	}
}

// keepalive queues a ping without blocking and reports whether the session is
// still deliverable. A session that has stopped reading fills up and fails.
func (s *Session) keepalive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.failed {
		return false
	}

	select {
	case s.outbound <- CommentFrame(CommentPing):
		return true
	default:
		s.failed = true
		return false
	}
}

// Failed reports whether a send to this session has failed.
func (s *Session) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Pending returns the number of unread frames.
func (s *Session) Pending() int {
	return len(s.outbound)
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.outbound)
}
