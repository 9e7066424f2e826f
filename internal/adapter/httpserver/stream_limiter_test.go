package httpserver

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserStreamLimiter_AcquireUpToMax(t *testing.T) {
	l := newUserStreamLimiter(2)

	assert.True(t, l.Acquire(1))
	assert.True(t, l.Acquire(1))
	assert.False(t, l.Acquire(1))
	assert.True(t, l.Acquire(2), "other users keep their own budget")

	assert.Equal(t, 2, l.Count(1))
	assert.Equal(t, 2, l.Users())
}

func TestUserStreamLimiter_ReleaseFreesSlot(t *testing.T) {
	l := newUserStreamLimiter(1)

	assert.True(t, l.Acquire(1))
	l.Release(1)
	assert.Equal(t, 0, l.Count(1))
	assert.Equal(t, 0, l.Users())
	assert.True(t, l.Acquire(1))
}

func TestUserStreamLimiter_ReleaseWithoutAcquire(t *testing.T) {
	l := newUserStreamLimiter(1)

	l.Release(9)

	assert.Equal(t, 0, l.Count(9))
	assert.Equal(t, 0, l.Users())
}

func TestUserStreamLimiter_Concurrent(t *testing.T) {
	l := newUserStreamLimiter(10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire(1) {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, granted)
	assert.Equal(t, 10, l.Count(1))
}
