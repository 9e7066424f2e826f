package httpserver

import (
	"sync"

	"github.com/pscheid92/grove/internal/domain"
)

// userStreamLimiter caps concurrent streams per signed-in user, so one account
// cannot use up the hub's session capacity.
type userStreamLimiter struct {
	mu     sync.Mutex
	open   map[domain.UserID]int
	maxPer int
}

func newUserStreamLimiter(maxPer int) *userStreamLimiter {
	return &userStreamLimiter{
		open:   make(map[domain.UserID]int),
		maxPer: maxPer,
	}
}

// Acquire reserves a stream slot for user. It returns false when the user
// already holds maxPer streams.
func (l *userStreamLimiter) Acquire(user domain.UserID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open[user] >= l.maxPer {
		return false
	}
	l.open[user]++
	return true
}

func (l *userStreamLimiter) Release(user domain.UserID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.open[user]; count > 0 {
		l.open[user] = count - 1
		if l.open[user] == 0 {
			delete(l.open, user)
		}
	}
}

func (l *userStreamLimiter) Count(user domain.UserID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open[user]
}

// Users returns the number of users with at least one open stream.
func (l *userStreamLimiter) Users() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}
