package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/dataghost/internal/answer"
	"github.com/JonMunkholm/dataghost/internal/config"
	"github.com/JonMunkholm/dataghost/internal/core"
	"github.com/JonMunkholm/dataghost/internal/logging"
	"github.com/JonMunkholm/dataghost/internal/session"
	"github.com/JonMunkholm/dataghost/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"answer_service", cfg.Answer.URL,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"max_sessions", cfg.Session.MaxSessions,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	client := answer.NewClient(answer.Options{
		BaseURL: cfg.Answer.URL,
		Timeout: cfg.Answer.Timeout,
	})

	sessions := session.NewManager(session.ManagerOptions{
		Asker: client,
		Parser: core.NewParser(core.ParseOptions{
			InvalidUTF8: core.UTF8Mode(strings.ToLower(cfg.Ingest.InvalidUTF8)),
			MaxBytes:    cfg.Upload.MaxFileSize,
		}),
		Limiter:         core.NewIngestLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		MaxSessions:     cfg.Session.MaxSessions,
		IdleTimeout:     cfg.Session.IdleTimeout,
		CleanupInterval: cfg.Session.CleanupInterval,
		Logger:          slog.Default(),
	})

	server := web.NewServer(cfg, sessions, client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Idle session janitor
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("server starting", "addr", cfg.Server.Addr())
		if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Dispose sessions and wait for in-flight ingests
		status := sessions.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
		}
		if err := sessions.Close(shutdownCtx); err != nil {
			slog.Warn("uploads did not complete in time", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
