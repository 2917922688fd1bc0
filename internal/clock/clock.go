// Package clock abstracts wall-clock access so hours-long waits in the
// scheduler and capture session can be interrupted and fast-forwarded in
// tests instead of blocking on real sleeps.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and cancellable timers.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives the current time once d has
	// elapsed. Callers select on it together with a context.
	After(d time.Duration) <-chan time.Time
}

// System is the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Manual is a test clock advanced explicitly by calling Advance. Timers fire
// when the manual time passes their deadline.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	at time.Time
	ch chan time.Time
}

// NewManual returns a manual clock pinned to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{at: m.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.ch <- m.now
		return t.ch
	}
	m.timers = append(m.timers, t)
	return t.ch
}

// Advance moves the clock forward by d and fires every timer whose deadline
// has been reached.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = m.now.Add(d)
	var pending []*manualTimer
	for _, t := range m.timers {
		if !t.at.After(m.now) {
			t.ch <- m.now
		} else {
			pending = append(pending, t)
		}
	}
	m.timers = pending
}

// Waiters reports how many timers are armed. Tests use it to synchronize
// with a goroutine that is about to block on After.
func (m *Manual) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
