// WeDraw customer-service session router server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/wedraw/support/internal/api"
	"github.com/wedraw/support/internal/autoreply"
	"github.com/wedraw/support/internal/config"
	"github.com/wedraw/support/internal/dispatch"
	"github.com/wedraw/support/internal/middleware"
	"github.com/wedraw/support/internal/push"
	"github.com/wedraw/support/internal/store"
	"github.com/wedraw/support/internal/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting support router", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize the persistence mirror.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Auto-reply rules live in the mirror so they can be tuned without a
	// deploy; the built-in set seeds the table on first run.
	if err := repo.SeedAutoReplyRules(context.Background(), autoreply.DefaultRules()); err != nil {
		slog.Warn("Failed to seed auto-reply rules", "error", err)
	}
	rules, err := repo.ListAutoReplyRules(context.Background())
	if err != nil || len(rules) == 0 {
		if err != nil {
			slog.Warn("Failed to load auto-reply rules, using defaults", "error", err)
		}
		rules = autoreply.DefaultRules()
	}
	slog.Info("Auto-reply rules loaded", "count", len(rules))

	// Initialize services.
	pusher := push.New(cfg.PushURL, cfg.PushChannels, cfg.PushInflight)
	hub := transport.NewHub(pusher)
	d := dispatch.New(dispatch.Options{
		Matcher:     autoreply.NewMatcher(rules),
		Notifier:    hub,
		Mirror:      repo,
		WaitPerSlot: cfg.WaitPerSlot,
	})

	// Initialize handlers.
	wsHandler := transport.NewHandler(d, hub, cfg.FrontendURL, cfg.IsDevelopment())
	apiHandler := api.NewHandler(d, repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/support", wsHandler.ServeHTTP)

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	// Start background workers.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatch.StartQueueWorker(ctx, d, cfg.QueueSweepInterval)
	dispatch.StartRetentionWorker(ctx, d, cfg.ClosedSessionTTL, cfg.RetentionInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
