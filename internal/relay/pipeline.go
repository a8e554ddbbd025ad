package relay

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ItsCrafted/blooket-hacks/internal/relay/audit"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/cooldown"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/filter"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/validate"
	"github.com/ItsCrafted/blooket-hacks/internal/trace"
)

// Outcome is what the pipeline did with one inbound frame.
type Outcome int

const (
	Accepted     Outcome = iota // relayed to everyone
	Ignored                     // valid, but not a chat message
	Dropped                     // failed validation, silently discarded
	Malformed                   // could not be parsed
	FilterBanned                // contained a filtered term; sender banned
	Banned                      // sender already banned
	RateLimited                 // sender inside cooldown
	Flooded                     // over the connection's frame budget, never parsed
	numOutcomes
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Ignored:
		return "ignored"
	case Dropped:
		return "dropped"
	case Malformed:
		return "malformed"
	case FilterBanned:
		return "filter_banned"
	case Banned:
		return "banned"
	case RateLimited:
		return "rate_limited"
	case Flooded:
		return "flooded"
	default:
		return "unknown"
	}
}

// BanList is the registry the pipeline checks and adds to.
type BanList interface {
	Contains(identity string) bool
	Add(identity string) (bool, error)
}

// Broadcaster fans a frame out to every live connection.
type Broadcaster interface {
	Broadcast(v any) (int, error)
}

// Replier sends a frame back to the originating connection only.
type Replier interface {
	Send(v any) (bool, error)
}

// Deps are the pipeline's collaborators.
type Deps struct {
	Validator *validate.Validator
	Filter    *filter.Filter
	Bans      BanList
	Limiter   *cooldown.Limiter
	Hub       Broadcaster
	Audit     *audit.Log
}

// Pipeline moderates inbound frames: parse, validate, filter enforcement, ban check,
// cooldown, then censor and broadcast. The first failing stage ends processing.
type Pipeline struct {
	validator *validate.Validator
	filter    *filter.Filter
	bans      BanList
	limiter   *cooldown.Limiter
	hub       Broadcaster
	audit     *audit.Log

	counts [numOutcomes]atomic.Int64
}

// NewPipeline wires a pipeline. Bans and Hub are required; the rest default when nil.
func NewPipeline(d Deps) *Pipeline {
	if d.Validator == nil {
		d.Validator = validate.New(validate.DefaultLimits())
	}
	if d.Filter == nil {
		d.Filter = filter.New()
	}
	if d.Limiter == nil {
		d.Limiter = cooldown.New(cooldown.DefaultInterval, nil)
	}
	if d.Audit == nil {
		d.Audit = audit.New(audit.DefaultMaxEntries)
	}
	return &Pipeline{
		validator: d.Validator,
		filter:    d.Filter,
		bans:      d.Bans,
		limiter:   d.Limiter,
		hub:       d.Hub,
		audit:     d.Audit,
	}
}

// Handle processes one raw frame from the connection with the given identity. Notices
// for the sender go through reply; accepted messages go to every connection.
func (p *Pipeline) Handle(ctx context.Context, identity string, reply Replier, raw []byte) Outcome {
	ctx, span := trace.StartSpan(ctx, "relay_message")
	defer span.End()
	span.SetAttr("identity", identity)

	out := p.handle(ctx, identity, reply, raw)
	p.counts[out].Add(1)
	span.SetAttr("outcome", out.String())
	return out
}

func (p *Pipeline) handle(ctx context.Context, identity string, reply Replier, raw []byte) Outcome {
	log := trace.Logger(ctx).With("identity", identity)

	in, err := ParseInbound(raw)
	if err != nil {
		log.Debug("malformed frame", "error", err)
		p.send(ctx, reply, ParseErrorNotice)
		return Malformed
	}

	if err := p.validator.Validate(in.Name, in.Content); err != nil {
		log.Debug("frame dropped", "error", err)
		return Dropped
	}
	// Folding can expand text or assemble the reserved marker, so the relayed form is
	// held to the same limits as the raw one.
	name, content := filter.Fold(in.Name), filter.Fold(in.Content)
	if err := p.validator.Validate(name, content); err != nil {
		log.Debug("frame dropped after folding", "error", err)
		return Dropped
	}

	if term, ok := p.filter.Triggered(in.Content); ok {
		if _, err := p.bans.Add(identity); err != nil {
			log.Warn("filter ban not recorded", "error", err)
		}
		p.audit.Record(identity, audit.ActionFilterBan, term)
		log.Info("identity banned by filter", "outcome", FilterBanned.String())
		p.send(ctx, reply, FilterBanNotice)
		return FilterBanned
	}

	if p.bans.Contains(identity) {
		p.audit.Record(identity, audit.ActionBanRejected, "")
		log.Debug("banned identity rejected", "outcome", Banned.String())
		p.send(ctx, reply, BanNotice)
		return Banned
	}

	if ok, wait := p.limiter.Allow(identity); !ok {
		secs := cooldown.WaitSeconds(wait)
		p.audit.Record(identity, audit.ActionRateLimited, fmt.Sprintf("wait %ds", secs))
		log.Debug("rate limited", "wait", wait, "outcome", RateLimited.String())
		p.send(ctx, reply, RateLimitNotice(secs))
		return RateLimited
	}

	if in.Type != TypeMsg {
		log.Debug("non-message frame ignored", "type", in.Type)
		return Ignored
	}

	msg := Outbound{
		Type:    TypeMsg,
		Src:     SrcLocal,
		Content: p.filter.CensorContent(content),
		Name:    p.filter.CensorName(name),
		ID:      identity,
	}
	n, err := p.hub.Broadcast(msg)
	if err != nil {
		log.Error("broadcast failed", "error", err)
		return Accepted
	}
	log.Info("message relayed", "name", msg.Name, "content", msg.Content, "recipients", n)
	return Accepted
}

func (p *Pipeline) send(ctx context.Context, reply Replier, v Outbound) {
	if ok, err := reply.Send(v); err != nil || !ok {
		trace.Logger(ctx).Debug("notice not queued", "id", v.ID, "error", err)
	}
}

// Flood records a frame the transport discarded for exceeding the connection's frame
// budget. Such frames get no notice, not even for banned or cooling-down senders.
func (p *Pipeline) Flood(ctx context.Context, identity string) Outcome {
	p.counts[Flooded].Add(1)
	trace.Logger(ctx).Debug("frame over budget discarded", "identity", identity)
	return Flooded
}

// Maintain prunes expired cooldown records until ctx ends.
func (p *Pipeline) Maintain(ctx context.Context) {
	ticker := time.NewTicker(PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.limiter.Prune(); n > 0 {
				trace.Logger(ctx).Debug("cooldown records pruned", "count", n)
			}
		}
	}
}

// Counts returns how many frames ended in each outcome.
func (p *Pipeline) Counts() map[string]int64 {
	out := make(map[string]int64, numOutcomes)
	for o := Outcome(0); o < numOutcomes; o++ {
		out[o.String()] = p.counts[o].Load()
	}
	return out
}
