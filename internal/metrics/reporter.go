// Package metrics periodically samples relay presence, pushes the online count to
// presence sockets and ships samples to an optional webhook.
package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
	"github.com/ItsCrafted/blooket-hacks/internal/resilience"
	"github.com/ItsCrafted/blooket-hacks/internal/trace"
)

// DefaultInterval matches the cadence of the presence log.
const DefaultInterval = 15 * time.Minute

// Sample is one presence reading.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Online    int       `json:"online"`
	Chatters  int       `json:"chatters"`
}

// TypeOnline tags presence frames.
const TypeOnline = "online"

// OnlineFrame is pushed to presence sockets.
type OnlineFrame struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Broadcaster fans a frame out to presence sockets.
type Broadcaster interface {
	Broadcast(v any) (int, error)
}

// Config wires a Reporter.
type Config struct {
	Interval time.Duration
	URL      string // empty: log only
	Online   func() int
	Chatters func() int
	Presence Broadcaster
	Client   *http.Client
	Retry    resilience.RetryConfig
}

// Reporter samples on a ticker. Failures are logged and never stop the loop.
type Reporter struct {
	cfg Config

	mu   sync.RWMutex
	last Sample
}

// New creates a reporter.
func New(cfg Config) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Online == nil {
		cfg.Online = func() int { return 0 }
	}
	if cfg.Chatters == nil {
		cfg.Chatters = func() int { return 0 }
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	return &Reporter{cfg: cfg}
}

// Run ticks until ctx ends.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick takes one sample, pushes the online count and ships the sample.
func (r *Reporter) Tick(ctx context.Context) Sample {
	ctx, span := trace.StartSpan(ctx, "metrics_tick")
	defer span.End()
	log := trace.Logger(ctx)

	s := Sample{
		Timestamp: time.Now().UTC(),
		Online:    r.cfg.Online(),
		Chatters:  r.cfg.Chatters(),
	}
	r.mu.Lock()
	r.last = s
	r.mu.Unlock()
	log.Info("presence sample", "online", s.Online, "chatters", s.Chatters)

	r.PushOnline()

	if r.cfg.URL != "" {
		err := resilience.Retry(ctx, r.cfg.Retry, func() error { return r.post(ctx, s) })
		if err != nil {
			span.RecordError(err)
			log.Warn("metrics push failed", "error", err)
		}
	}
	return s
}

// PushOnline sends the current online count to presence sockets.
func (r *Reporter) PushOnline() {
	if r.cfg.Presence == nil {
		return
	}
	_, _ = r.cfg.Presence.Broadcast(OnlineFrame{Type: TypeOnline, Count: r.cfg.Online()})
}

// Last returns the most recent sample.
func (r *Reporter) Last() Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

func (r *Reporter) post(ctx context.Context, s Sample) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidArgument, "build metrics request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "metrics request")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.Newf(apperrors.CodeUpstreamFailed, "metrics sink status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return apperrors.Newf(apperrors.CodeInvalidArgument, "metrics sink status %d", resp.StatusCode)
	}
	return nil
}
