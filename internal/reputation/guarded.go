package reputation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ItsCrafted/blooket-hacks/internal/resilience"
	"github.com/ItsCrafted/blooket-hacks/internal/trace"
)

// Guarded wraps a Checker for use on the connect path: lookups are bounded by a
// timeout and a circuit breaker, can be switched off at runtime, and fail open.
type Guarded struct {
	inner   Checker
	timeout time.Duration
	breaker *resilience.Breaker
	enabled atomic.Bool

	checks  atomic.Int64
	flagged atomic.Int64
	failed  atomic.Int64
}

// NewGuarded wraps inner.
func NewGuarded(inner Checker, timeout time.Duration, enabled bool) *Guarded {
	g := &Guarded{
		inner:   inner,
		timeout: timeout,
		breaker: resilience.New("reputation", resilience.ReputationConfig()),
	}
	g.enabled.Store(enabled)
	return g
}

// SetEnabled switches checking on or off.
func (g *Guarded) SetEnabled(on bool) {
	g.enabled.Store(on)
}

// Enabled reports whether checks run.
func (g *Guarded) Enabled() bool { return g.enabled.Load() }

// Flagged reports whether addr should be refused. Disabled checks, errors, timeouts and
// an open breaker all answer false.
func (g *Guarded) Flagged(ctx context.Context, addr string) bool {
	if !g.enabled.Load() || g.inner == nil {
		return false
	}
	ctx, span := trace.StartSpan(ctx, "reputation_check")
	defer span.End()
	g.checks.Add(1)

	flagged, err := resilience.Call(g.breaker, func() (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.inner.Check(ctx, addr)
	})
	if err != nil {
		g.failed.Add(1)
		span.RecordError(err)
		trace.Logger(ctx).Warn("reputation check failed, allowing", "error", err, "breaker", g.breaker.State().String())
		return false
	}
	span.SetAttr("flagged", flagged)
	if flagged {
		g.flagged.Add(1)
	}
	return flagged
}

// Stats returns counters for the admin surface.
func (g *Guarded) Stats() map[string]int64 {
	return map[string]int64{
		"checks":  g.checks.Load(),
		"flagged": g.flagged.Load(),
		"failed":  g.failed.Load(),
		// lookups skipped while the upstream's breaker was open
		"short_circuited": g.breaker.Rejected(),
	}
}
