// Relay server - moderated anonymous chat over WebSocket with an admin gRPC surface
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ItsCrafted/blooket-hacks/internal/admin"
	"github.com/ItsCrafted/blooket-hacks/internal/config"
	"github.com/ItsCrafted/blooket-hacks/internal/identity"
	"github.com/ItsCrafted/blooket-hacks/internal/joinproxy"
	"github.com/ItsCrafted/blooket-hacks/internal/metrics"
	"github.com/ItsCrafted/blooket-hacks/internal/otel"
	"github.com/ItsCrafted/blooket-hacks/internal/relay"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/audit"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/cooldown"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/filter"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/hub"
	"github.com/ItsCrafted/blooket-hacks/internal/relay/validate"
	"github.com/ItsCrafted/blooket-hacks/internal/reputation"
	"github.com/ItsCrafted/blooket-hacks/internal/server"
	"github.com/ItsCrafted/blooket-hacks/internal/store"
	"github.com/ItsCrafted/blooket-hacks/internal/trace"
)

const serviceName = "chat-relay"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg); err != nil {
		slog.Error("relay stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, serviceName)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	bans, words, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	f := filter.New()
	words.OnChange(f.SetTerms)

	log := audit.New(audit.DefaultMaxEntries)
	chat := hub.New("chat")
	presence := hub.New("presence")
	limiter := cooldown.New(cfg.Cooldown, nil)

	pipeline := relay.NewPipeline(relay.Deps{
		Validator: validate.New(validate.Limits{MaxName: cfg.MaxNameLength, MaxContent: cfg.MaxContentLength}),
		Filter:    f,
		Bans:      bans,
		Limiter:   limiter,
		Hub:       chat,
		Audit:     log,
	})

	rep := reputation.NewGuarded(newChecker(cfg), cfg.ReputationTimeout, cfg.ReputationEnabled)
	join := joinproxy.New(cfg.JoinEndpoint, cfg.JoinToken, joinproxy.NewRecent(cfg.MaxRecentGames))

	var srv *server.Server
	var ctrl *admin.Controller
	verifier := admin.NewVerifier([]byte(cfg.AdminSecret), nil)
	if cfg.AdminSecret != "" {
		ctrl = admin.NewController(admin.Deps{
			Bans:       bans,
			Words:      words,
			Audit:      log,
			Reputation: rep,
			Cooldown:   limiter,
			Stats:      func() map[string]any { return srv.Stats() },
		})
	} else {
		slog.Warn("ADMIN_SECRET not set, admin surfaces disabled")
	}

	srv = server.New(server.Deps{
		Config:     cfg,
		Pipeline:   pipeline,
		Chat:       chat,
		Presence:   presence,
		Deriver:    identity.NewDeriver(identitySecret(cfg)),
		Reputation: rep,
		Audit:      log,
		Join:       join,
		Admin:      ctrl,
		Verifier:   verifier,
	})

	reporter := metrics.New(metrics.Config{
		Interval: cfg.MetricsInterval,
		URL:      cfg.MetricsURL,
		Online:   presence.Len,
		Chatters: chat.Len,
		Presence: presence,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("relay server starting", "http", cfg.HTTPAddr, "store", cfg.StoreBackend)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var grpcServer *grpc.Server
	if ctrl != nil {
		lis, err := net.Listen("tcp", cfg.AdminGRPCAddr)
		if err != nil {
			return err
		}
		grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
			trace.UnaryServerInterceptor(),
			admin.UnaryAuthInterceptor(verifier),
		))
		admin.Register(grpcServer, ctrl)
		g.Go(func() error {
			slog.Info("admin grpc starting", "addr", cfg.AdminGRPCAddr)
			return grpcServer.Serve(lis)
		})
	}

	g.Go(func() error {
		pipeline.Maintain(gctx)
		return nil
	})
	g.Go(func() error {
		reporter.Run(gctx)
		return nil
	})

	// Wait for a shutdown signal or the first server failure
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		return nil
	})

	return g.Wait()
}

// openStores builds the ban registry and word list on the configured backend and loads
// them. A load failure leaves that set empty and is logged.
func openStores(ctx context.Context, cfg *config.Config) (bans, words *store.Set, closeFn func(), err error) {
	opts := []store.Option{store.WithPersistDelay(cfg.PersistDelay)}

	var bansP, wordsP store.Persister
	var db *store.DB
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		db, err = store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		bansP, wordsP = db.List("bans"), db.List("words")
	default:
		bansP = store.JSONFile{Path: filepath.Clean(cfg.BansFile)}
		wordsP = store.JSONFile{Path: filepath.Clean(cfg.WordsFile)}
	}

	bans = store.New("bans", bansP, store.IdentityNormalizer, opts...)
	words = store.New("words", wordsP, store.WordNormalizer, opts...)
	for _, s := range []*store.Set{bans, words} {
		if err := s.Load(ctx); err != nil {
			slog.Error("store load failed, starting empty", "store", s.Name(), "error", err)
		}
	}

	closeFn = func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range []*store.Set{bans, words} {
			if err := s.Close(closeCtx); err != nil {
				slog.Error("store flush failed", "store", s.Name(), "error", err)
			}
		}
		if db != nil {
			_ = db.Close()
		}
	}
	return bans, words, closeFn, nil
}

func newChecker(cfg *config.Config) reputation.Checker {
	switch cfg.ReputationProvider {
	case config.ProviderDNSBL:
		return reputation.NewDNSBL(cfg.DNSBLZone, cfg.DNSBLServer)
	default:
		if cfg.IPInfoToken == "" && cfg.ReputationEnabled {
			slog.Warn("VPNCHECK_TOKEN not set, ipinfo lookups are unauthenticated")
		}
		return reputation.NewIPInfo(cfg.IPInfoToken)
	}
}

func identitySecret(cfg *config.Config) []byte {
	if cfg.Secret != "" {
		return []byte(cfg.Secret)
	}
	slog.Warn("RELAY_SECRET not set, identities will change on restart")
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return b
}
