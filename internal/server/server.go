// Package server provides the relay's HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sync/atomic"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/ItsCrafted/blooket-hacks/internal/admin"
	"github.com/ItsCrafted/blooket-hacks/internal/config"
	"github.com/ItsCrafted/blooket-hacks/internal/identity"
	"github.com/ItsCrafted/blooket-hacks/internal/joinproxy"
	"github.com/ItsCrafted/blooket-hacks/internal/metrics"
	"github.com/ItsCrafted/blooket-hacks/internal/relay"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/audit"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/hub"
	"github.com/ItsCrafted/blooket-hacks/internal/reputation"
	"github.com/ItsCrafted/blooket-hacks/internal/trace"
)

// Deps wires a Server. Reputation, Join, Admin and Verifier may be nil.
type Deps struct {
	Config     *config.Config
	Pipeline   *relay.Pipeline
	Chat       *hub.Hub
	Presence   *hub.Hub
	Deriver    *identity.Deriver
	Reputation *reputation.Guarded
	Audit      *audit.Log
	Join       *joinproxy.Proxy
	Admin      *admin.Controller
	Verifier   *admin.Verifier
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	cfg        *config.Config
	pipeline   *relay.Pipeline
	chat       *hub.Hub
	presence   *hub.Hub
	deriver    *identity.Deriver
	reputation *reputation.Guarded
	audit      *audit.Log
	join       *joinproxy.Proxy
	admin      *admin.Controller
	verifier   *admin.Verifier

	rejected atomic.Int64
}

// New creates a new server.
func New(d Deps) *Server {
	if d.Audit == nil {
		d.Audit = audit.New(audit.DefaultMaxEntries)
	}
	if d.Verifier == nil {
		d.Verifier = admin.NewVerifier(nil, nil)
	}
	return &Server{
		cfg:        d.Config,
		pipeline:   d.Pipeline,
		chat:       d.Chat,
		presence:   d.Presence,
		deriver:    d.Deriver,
		reputation: d.Reputation,
		audit:      d.Audit,
		join:       d.Join,
		admin:      d.Admin,
		verifier:   d.Verifier,
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoints
	mux.HandleFunc("GET /chat", s.handleChat)
	mux.HandleFunc("GET /onlinecount", s.handlePresence)

	// Static pages
	mux.HandleFunc("GET /{$}", s.page(PageIndex))
	mux.HandleFunc("GET /bm", s.page(PageBookmarklet))
	mux.HandleFunc("GET /credits", s.page(PageCredits))
	mux.HandleFunc("GET /credits/discordchatlink", s.page(PageDiscordCredits))
	mux.HandleFunc("GET /script.js", s.page(PageScript))

	// Join proxy
	mux.HandleFunc("POST /join", s.handleJoin)
	recent := http.Handler(http.HandlerFunc(s.handleRecentGames))
	if s.cfg.RecentGamesAdminOnly {
		recent = admin.RequireToken(s.verifier, recent)
	}
	mux.Handle("GET /recent-games", recent)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.admin != nil {
		s.admin.Routes(mux, s.verifier)
	}

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// wsTransport adapts a websocket connection to hub.Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t wsTransport) Write(ctx context.Context, frame []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, frame)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	addr := identity.ClientAddress(r, s.cfg.TrustForwardedFor)
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	conn.SetReadLimit(ReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := s.deriver.Derive(addr).String()
	log := trace.Logger(ctx).With("identity", id)

	if s.reputation != nil && s.reputation.Flagged(ctx, addr) {
		s.reject(ctx, conn, id)
		return
	}

	client := hub.NewClient(id, addr, wsTransport{conn: conn},
		hub.WithSendBuffer(s.cfg.SendBuffer),
		hub.WithWriteTimeout(s.cfg.WriteTimeout),
	)
	s.chat.Register(client)
	defer s.chat.Unregister(client)
	log.Info("chat connected", "client", client.ID.String(), "online", s.chat.Len())

	go func() {
		defer cancel()
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			log.Debug("chat writer stopped", "error", err)
		}
	}()

	flood := rate.NewLimiter(rate.Limit(s.cfg.FrameRate), s.cfg.FrameBurst)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
				log.Debug("websocket read error", "error", err)
			}
			log.Info("chat disconnected", "client", client.ID.String())
			return
		}
		if !flood.Allow() {
			s.pipeline.Flood(ctx, id)
			continue
		}
		s.pipeline.Handle(ctx, id, client, data)
	}
}

// reject tells a flagged connection why and closes it with a policy violation.
func (s *Server) reject(ctx context.Context, conn *websocket.Conn, id string) {
	s.rejected.Add(1)
	s.audit.Record(id, audit.ActionSecurity, "reputation check")
	trace.Logger(ctx).Warn("connection refused by reputation check", "identity", id)

	frame, err := json.Marshal(relay.SecurityNotice)
	if err == nil {
		wctx, cancel := context.WithTimeout(ctx, RejectWriteTimeout)
		_ = conn.Write(wctx, websocket.MessageText, frame)
		cancel()
	}
	_ = conn.Close(websocket.StatusPolicyViolation, "connection refused")
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// Presence sockets never send; CloseRead ends ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	client := hub.NewClient("", identity.ClientAddress(r, s.cfg.TrustForwardedFor), wsTransport{conn: conn},
		hub.WithSendBuffer(PresenceSendBuffer),
		hub.WithWriteTimeout(s.cfg.WriteTimeout),
	)
	s.presence.Register(client)
	defer s.presence.Unregister(client)

	_, _ = client.Send(metrics.OnlineFrame{Type: metrics.TypeOnline, Count: s.presence.Len()})
	_ = client.Run(ctx)
}

func (s *Server) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(s.cfg.StaticDir, name))
	}
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxJoinBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			trace.Logger(r.Context()).Warn("join body too large", "limit", tooLarge.Limit)
		}
		body = nil
	}
	var reply []byte
	if s.join != nil {
		reply = s.join.Join(r.Context(), body)
	} else {
		reply = joinproxy.FailedReply()
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(reply)
}

func (s *Server) handleRecentGames(w http.ResponseWriter, r *http.Request) {
	games := []string{}
	if s.join != nil {
		games = s.join.Recent()
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Stats())
}

// Stats reports live connection figures; the admin surface embeds them.
func (s *Server) Stats() map[string]any {
	out := map[string]any{
		"status":   "ok",
		"online":   s.presence.Len(),
		"chatters": s.chat.Len(),
		"refused":  s.rejected.Load(),
	}
	outcomes := map[string]any{}
	for k, v := range s.pipeline.Counts() {
		outcomes[k] = v
	}
	out["outcomes"] = outcomes
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
