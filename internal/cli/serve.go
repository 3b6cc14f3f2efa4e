package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/ggoodman/toolwire/auth"
	"github.com/ggoodman/toolwire/catalog"
	"github.com/ggoodman/toolwire/dispatch"
	"github.com/ggoodman/toolwire/fanout"
	"github.com/ggoodman/toolwire/internal/config"
	"github.com/ggoodman/toolwire/internal/devdomain"
	"github.com/ggoodman/toolwire/sessions"
	"github.com/ggoodman/toolwire/socialgraph"
	"github.com/ggoodman/toolwire/socialgraph/filegraph"
	"github.com/ggoodman/toolwire/socialgraph/memgraph"
	"github.com/ggoodman/toolwire/socialgraph/redisgraph"
	"github.com/ggoodman/toolwire/socialgraph/sqlitegraph"
	"github.com/ggoodman/toolwire/wsserver"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default: $TOOLWIRE_ADDR or :8080)")
	cmd.Flags().String("path", "", "WebSocket endpoint path (default: $TOOLWIRE_PATH or /ws)")
	cmd.Flags().String("graph", "", "Follow graph backend: memory, redis, sqlite or file")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")
	cmd.Flags().Bool("dev-auth", false, "Accept any token as the user id (development only)")
	cmd.Flags().StringSlice("allowed-origin", nil, "Allowed browser origin (repeatable)")
	return cmd
}

// applyFlags overrides cfg with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("path") {
		cfg.Path, _ = flags.GetString("path")
	}
	if flags.Changed("graph") {
		cfg.Graph, _ = flags.GetString("graph")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("dev-auth") {
		cfg.DevAuth, _ = flags.GetBool("dev-auth")
	}
	if flags.Changed("allowed-origin") {
		origins, _ := flags.GetStringSlice("allowed-origin")
		cfg.AllowedOrigins = strings.Join(origins, ",")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return exitError(exitConfig, "%v", err)
	}
	logger, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authn, err := newAuthenticator(ctx, cfg)
	if err != nil {
		return exitError(exitAuth, "configuring authentication: %v", err)
	}

	graph, closeGraph, err := openGraph(ctx, cfg, logger)
	if err != nil {
		return exitError(exitConfig, "opening %s graph: %v", cfg.Graph, err)
	}
	defer func() {
		if err := closeGraph(); err != nil {
			logger.Warn("graph.close.fail", slog.String("err", err.Error()))
		}
	}()

	domain := devdomain.New(graph)
	authn = domain.Authenticator(authn)
	registry, err := catalog.Build(domain.Handlers())
	if err != nil {
		return exitError(exitRuntime, "building tool registry: %v", err)
	}

	manager := sessions.NewManager(
		sessions.WithLogger(logger),
		sessions.WithWelcome(catalog.Version, catalog.Features(), registry.Summaries()),
		sessions.WithHeartbeat(cfg.Heartbeat),
		sessions.WithStaleAfter(cfg.StaleAfter),
		sessions.WithCleanupInterval(cfg.CleanupInterval),
		sessions.WithAnnounceOffline(cfg.AnnounceOffline),
	)
	presence := fanout.NewPresence(manager, graph, logger)
	manager.SetPresence(presence)

	engine, err := catalog.NewEngine(manager, graph, fanout.WithLogger(logger))
	if err != nil {
		return exitError(exitRuntime, "building fan-out engine: %v", err)
	}

	observer, err := dispatch.NewObserver(
		otelapi.GetMeterProvider().Meter("toolwire/dispatch"),
		otelapi.GetTracerProvider().Tracer("toolwire/dispatch"),
	)
	if err != nil {
		return exitError(exitRuntime, "initializing tool observability: %v", err)
	}
	dispatcher, err := dispatch.NewDispatcher(registry, engine,
		dispatch.WithLogger(logger),
		dispatch.WithObserver(observer),
	)
	if err != nil {
		return exitError(exitRuntime, "building dispatcher: %v", err)
	}

	ws, err := wsserver.New(authn, manager, dispatcher,
		wsserver.WithLogger(logger),
		wsserver.WithAllowedOrigins(cfg.Origins()...),
		wsserver.WithReadLimit(cfg.ReadLimit),
		wsserver.WithRealm(cfg.Realm),
		wsserver.WithPresence(presence),
		wsserver.WithCapabilities(catalog.Resources(), catalog.Events()),
	)
	if err != nil {
		return exitError(exitRuntime, "building websocket handler: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, ws)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       "ok",
			"connections":  manager.ConnectionCount(),
			"online_users": len(manager.OnlineUsers()),
		})
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session.run.fail", slog.String("err", err.Error()))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.listen", slog.String("addr", cfg.Addr), slog.String("path", cfg.Path), slog.String("graph", cfg.Graph))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("server.shutdown.start")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("sessions: %w", err))
	}
	if err := ws.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tool calls: %w", err))
	}
	if err := waitCtx(shutdownCtx, engine.Wait); err != nil {
		errs = append(errs, fmt.Errorf("fan-out: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return exitError(exitRuntime, "shutdown: %v", err)
	}
	logger.Info("server.shutdown.ok")
	return nil
}

func waitCtx(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newAuthenticator(ctx context.Context, cfg config.Config) (auth.Authenticator, error) {
	var opts []auth.JWTOption
	if auds := cfg.Audiences(); len(auds) > 0 {
		opts = append(opts, auth.WithAudience(auds...))
	}
	switch {
	case cfg.JWKSURL != "":
		if cfg.JWTIssuer != "" {
			opts = append(opts, auth.WithIssuer(cfg.JWTIssuer))
		}
		return auth.NewStaticJWKS(ctx, cfg.JWKSURL, opts...)
	case cfg.JWTIssuer != "" && cfg.JWTSecret == "":
		return auth.NewFromDiscovery(ctx, cfg.JWTIssuer, opts...)
	case cfg.JWTSecret != "":
		if cfg.JWTIssuer != "" {
			opts = append(opts, auth.WithIssuer(cfg.JWTIssuer))
		}
		return auth.NewHMAC([]byte(cfg.JWTSecret), opts...)
	case cfg.DevAuth:
		return devAuthenticator(), nil
	default:
		return nil, errors.New("no authentication configured")
	}
}

// devAuthenticator treats the token as the user id.
func devAuthenticator() auth.Authenticator {
	return auth.AuthenticatorFunc(func(_ context.Context, tok string) (auth.Principal, error) {
		if tok == "" {
			return auth.Principal{}, auth.ErrMissingToken
		}
		return auth.Principal{ID: tok, Username: tok}, nil
	})
}

func openGraph(ctx context.Context, cfg config.Config, logger *slog.Logger) (socialgraph.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Graph {
	case config.GraphRedis:
		g, err := redisgraph.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case config.GraphSQLite:
		g, err := sqlitegraph.Open(sqlitegraph.Config{DSN: cfg.SQLiteDSN})
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case config.GraphFile:
		g, err := filegraph.Open(cfg.GraphFile, logger)
		if err != nil {
			return nil, nil, err
		}
		go func() {
			if err := g.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("graph.watch.fail", slog.String("err", err.Error()))
			}
		}()
		return g, noop, nil
	default:
		return memgraph.New(), noop, nil
	}
}
