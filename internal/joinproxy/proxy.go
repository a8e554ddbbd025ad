// Package joinproxy forwards game join requests to the configured upstream and
// remembers recently joined game ids.
package joinproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
	"github.com/ItsCrafted/blooket-hacks/internal/resilience"
	"github.com/ItsCrafted/blooket-hacks/internal/trace"
)

// LaserTagIDLength is the id length of game modes the bot cannot join.
const LaserTagIDLength = 6

const maxBody = 1 << 20

// Replies the proxy answers itself.
var (
	laserTagResult = struct {
		Success bool   `json:"success"`
		ErrType string `json:"errType"`
		Msg     string `json:"msg"`
	}{Msg: "Blooket Bot doesn't work on laser tag!"}

	failedResult = struct {
		Success bool   `json:"success"`
		Msg     string `json:"msg"`
	}{Msg: "Join failed"}
)

// Proxy relays join requests.
type Proxy struct {
	endpoint string
	token    string
	client   *http.Client
	breaker  *resilience.Breaker
	recent   *Recent
}

// New creates a proxy. An empty endpoint makes every join fail.
func New(endpoint, token string, recent *Recent) *Proxy {
	return &Proxy{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 15 * time.Second},
		breaker:  resilience.New("join", resilience.JoinConfig()),
		recent:   recent,
	}
}

type joinRequest struct {
	ID   *string `json:"id"`
	Name string  `json:"name"`
}

// Join handles one request body and returns the body to send back. It never fails;
// every error collapses into the generic failure reply.
func (p *Proxy) Join(ctx context.Context, body []byte) []byte {
	ctx, span := trace.StartSpan(ctx, "join_proxy")
	defer span.End()
	log := trace.Logger(ctx)

	var req joinRequest
	if err := json.Unmarshal(body, &req); err != nil || req.ID == nil {
		log.Debug("join request rejected", "error", err)
		return mustJSON(failedResult)
	}
	span.SetAttr("game_id", *req.ID)

	if len([]rune(*req.ID)) == LaserTagIDLength {
		return mustJSON(laserTagResult)
	}

	resp, err := resilience.Call(p.breaker, func() ([]byte, error) {
		return p.forward(ctx, body)
	})
	if err != nil {
		span.RecordError(err)
		log.Warn("join failed", "game_id", *req.ID, "error", err)
		return mustJSON(failedResult)
	}
	log.Info("joining game", "game_id", *req.ID, "name", req.Name)

	var upstream struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp, &upstream); err != nil {
		log.Warn("join upstream sent non-JSON reply", "error", err)
		return mustJSON(failedResult)
	}
	if upstream.Success {
		p.recent.Add(*req.ID)
	}
	return resp
}

func (p *Proxy) forward(ctx context.Context, body []byte) ([]byte, error) {
	if p.endpoint == "" {
		return nil, apperrors.New(apperrors.CodeConfigMissing, "join endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "build join request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUpstreamFailed, "join request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUpstreamFailed, "read join reply")
	}
	if resp.StatusCode >= 500 {
		return nil, apperrors.Newf(apperrors.CodeUpstreamFailed, "join upstream status %d", resp.StatusCode)
	}
	return data, nil
}

// FailedReply is the body returned for any join that cannot be completed.
func FailedReply() []byte { return mustJSON(failedResult) }

// Recent returns the remembered game ids.
func (p *Proxy) Recent() []string { return p.recent.List() }

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
