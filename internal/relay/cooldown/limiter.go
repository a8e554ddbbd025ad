// Package cooldown enforces a minimum interval between accepted messages per identity.
package cooldown

import (
	"math"
	"sync"
	"time"
)

// DefaultInterval is the production cooldown.
const DefaultInterval = 1500 * time.Millisecond

// Clock returns the current time; tests substitute a fake.
type Clock func() time.Time

// Limiter tracks the last accepted message time per identity. Check-and-update is a
// single critical section, so two concurrent messages from one identity cannot both
// pass.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      Clock
}

// New creates a limiter. A nil clock uses time.Now.
func New(interval time.Duration, now Clock) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      now,
	}
}

// Allow records an accepted message for id and returns true, or returns false with the
// time still to wait. A rejected call leaves the clock untouched.
func (l *Limiter) Allow(id string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if prev, ok := l.last[id]; ok {
		if elapsed := now.Sub(prev); elapsed < l.interval {
			return false, l.interval - elapsed
		}
	}
	l.last[id] = now
	return true, 0
}

// Interval returns the configured cooldown.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Forget drops the record for id.
func (l *Limiter) Forget(id string) {
	l.mu.Lock()
	delete(l.last, id)
	l.mu.Unlock()
}

// Prune drops records whose cooldown has expired and returns how many were removed.
// Expired records behave exactly like missing ones, so pruning never changes a decision.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for id, t := range l.last {
		if now.Sub(t) >= l.interval {
			delete(l.last, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked identities.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.last)
}

// WaitSeconds rounds a remaining wait up to whole seconds for user-facing notices.
func WaitSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
