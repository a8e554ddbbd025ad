// Package resilience keeps slow or failing upstreams (reputation lookups, game joins,
// operator RPCs, metrics posts) from stalling the relay paths that call them.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State is a breaker's position.
type State uint32

const (
	Closed   State = iota // calls pass through
	Open                  // calls fail fast
	HalfOpen              // one trial call at a time
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the upstream while the breaker is open, or while
// a half-open trial is already in flight.
var ErrOpen = errors.New("circuit breaker open")

// Breaker trips after Config.Threshold consecutive failures and fails fast for
// Config.ResetTimeout. It then lets single trial calls through until
// Config.HalfOpenSuccesses of them succeed in a row; any trial failure reopens it.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	trial     bool

	rejected atomic.Int64
}

// New creates a named breaker; the name tags its log lines.
func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// State returns the current position. An open breaker whose timeout has passed still
// reports Open until the next call moves it to HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Rejected counts calls refused without reaching the upstream.
func (b *Breaker) Rejected() int64 { return b.rejected.Load() }

// Call runs fn unless the breaker is refusing calls. A context cancellation reported by
// fn is the caller giving up, not the upstream failing, so it does not count against the
// upstream.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	trial, err := b.admit()
	if err != nil {
		return zero, err
	}
	result, err := fn()
	b.record(trial, err)
	if err != nil {
		return zero, err
	}
	return result, nil
}

func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.rejected.Add(1)
			return false, ErrOpen
		}
		b.setLocked(HalfOpen)
	case Closed:
		return false, nil
	}
	if b.trial {
		b.rejected.Add(1)
		return false, ErrOpen
	}
	b.trial = true
	return true, nil
}

func (b *Breaker) record(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trial = false
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	if err == nil {
		switch b.state {
		case Closed:
			b.failures = 0
		case HalfOpen:
			if !trial {
				return
			}
			b.successes++
			if b.successes >= b.cfg.HalfOpenSuccesses {
				b.setLocked(Closed)
			}
		}
		return
	}

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			b.setLocked(Open)
		}
	case HalfOpen:
		b.setLocked(Open)
	}
}

func (b *Breaker) setLocked(to State) {
	if b.state == to {
		return
	}
	b.state = to
	b.successes = 0

	switch to {
	case Closed:
		b.failures = 0
		slog.Info("circuit breaker closed", "breaker", b.name)
	case Open:
		b.openedAt = b.now()
		slog.Warn("circuit breaker opened", "breaker", b.name, "failures", b.failures, "retry_after", b.cfg.ResetTimeout)
	case HalfOpen:
		slog.Info("circuit breaker half-open", "breaker", b.name)
	}
}
