package admin

import (
	"context"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/audit"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/cooldown"
	"github.com/ItsCrafted/blooket-hacks/internal/reputation"
	"github.com/ItsCrafted/blooket-hacks/internal/store"
	"github.com/ItsCrafted/blooket-hacks/internal/trace"
)

// StatsFunc reports live relay figures. Values must be JSON and structpb friendly:
// numbers, strings, bools, and nested map[string]any.
type StatsFunc func() map[string]any

// Deps are the state the controller operates on; the same instances the pipeline uses.
type Deps struct {
	Bans       *store.Set
	Words      *store.Set
	Audit      *audit.Log
	Reputation *reputation.Guarded
	// Cooldown, when set, is cleared for an identity on unban.
	Cooldown *cooldown.Limiter
	Stats    StatsFunc
}

// Controller implements the operator actions shared by the gRPC and REST surfaces.
type Controller struct {
	bans       *store.Set
	words      *store.Set
	audit      *audit.Log
	reputation *reputation.Guarded
	cooldown   *cooldown.Limiter
	stats      StatsFunc
}

// NewController creates a controller.
func NewController(d Deps) *Controller {
	if d.Audit == nil {
		d.Audit = audit.New(audit.DefaultMaxEntries)
	}
	if d.Stats == nil {
		d.Stats = func() map[string]any { return map[string]any{} }
	}
	return &Controller{
		bans:       d.Bans,
		words:      d.Words,
		audit:      d.Audit,
		reputation: d.Reputation,
		cooldown:   d.Cooldown,
		stats:      d.Stats,
	}
}

// Ban adds an identity to the registry. It reports whether anything changed.
func (c *Controller) Ban(ctx context.Context, id string) (bool, error) {
	return c.mutate(ctx, c.bans.Add, id, audit.ActionBan)
}

// Unban removes an identity from the registry. A lifted ban also lifts any cooldown
// left over from before it, so the sender's next message is judged fresh.
func (c *Controller) Unban(ctx context.Context, id string) (bool, error) {
	changed, err := c.mutate(ctx, c.bans.Remove, id, audit.ActionUnban)
	if err != nil || !changed || c.cooldown == nil {
		return changed, err
	}
	if canonical, err := store.IdentityNormalizer(id); err == nil {
		c.cooldown.Forget(canonical)
	}
	return changed, nil
}

// AddWord adds a filtered term.
func (c *Controller) AddWord(ctx context.Context, word string) (bool, error) {
	return c.mutate(ctx, c.words.Add, word, audit.ActionWordAdded)
}

// RemoveWord removes a filtered term.
func (c *Controller) RemoveWord(ctx context.Context, word string) (bool, error) {
	return c.mutate(ctx, c.words.Remove, word, audit.ActionWordRemoved)
}

func (c *Controller) mutate(ctx context.Context, op func(string) (bool, error), arg string, action audit.Action) (bool, error) {
	changed, err := op(arg)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid entry")
	}
	if changed {
		subject := SubjectFromContext(ctx)
		c.audit.Record("", action, subject+": "+arg)
		trace.Logger(ctx).Info("admin change", "action", string(action), "entry", arg, "subject", subject)
	}
	return changed, nil
}

// Bans lists banned identities in insertion order.
func (c *Controller) Bans() []string { return c.bans.Snapshot() }

// Words lists filtered terms in insertion order.
func (c *Controller) Words() []string { return c.words.Snapshot() }

// SetReputationCheck switches the connect-time reputation check.
func (c *Controller) SetReputationCheck(ctx context.Context, on bool) error {
	if c.reputation == nil {
		return apperrors.New(apperrors.CodeUnavailable, "reputation checking is not configured")
	}
	c.reputation.SetEnabled(on)
	state := "off"
	if on {
		state = "on"
	}
	subject := SubjectFromContext(ctx)
	c.audit.Record("", audit.ActionVPNCheck, subject+": "+state)
	trace.Logger(ctx).Info("reputation check toggled", "enabled", on, "subject", subject)
	return nil
}

// Audit returns up to limit recent audit entries, newest first.
func (c *Controller) Audit(limit int) []audit.Entry { return c.audit.Recent(limit) }

// Stats merges live figures with store sizes and audit counters.
func (c *Controller) Stats() map[string]any {
	out := c.stats()
	out["bans"] = c.bans.Len()
	out["words"] = c.words.Len()

	actions := map[string]any{}
	for k, v := range c.audit.Counts() {
		actions[string(k)] = v
	}
	out["actions"] = actions

	if c.reputation != nil {
		rep := map[string]any{"enabled": c.reputation.Enabled()}
		for k, v := range c.reputation.Stats() {
			rep[k] = v
		}
		out["reputation"] = rep
	}
	return out
}

type subjectKey struct{}

// WithSubject records the authenticated operator in ctx.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the authenticated operator, or "unknown".
func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}
