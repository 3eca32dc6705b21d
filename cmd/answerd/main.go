package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/dataghost/internal/backend"
	"github.com/JonMunkholm/dataghost/internal/config"
	"github.com/JonMunkholm/dataghost/internal/core"
	"github.com/JonMunkholm/dataghost/internal/logging"
)

func main() {
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := backend.NewFileStore(cfg.Backend.UploadDir, cfg.Backend.MaxFileSize)
	if err != nil {
		slog.Error("failed to prepare upload directory", "error", err)
		os.Exit(1)
	}

	index, closeIndex, err := openIndex(ctx, cfg)
	if err != nil {
		slog.Error("failed to open file index", "error", err)
		os.Exit(1)
	}
	defer closeIndex()

	cache := openCache(ctx, cfg)
	defer cache.Close()

	provider := backend.NewProvider(backend.ProviderOptions{
		APIKey:      cfg.Backend.OpenAIAPIKey,
		BaseURL:     cfg.Backend.OpenAIBaseURL,
		Model:       cfg.Backend.OpenAIModel,
		MaxTokens:   cfg.Backend.MaxTokens,
		Temperature: cfg.Backend.Temperature,
	})
	if provider.Name() == "mock" {
		slog.Warn("OPENAI_API_KEY not set, answering with the mock provider")
	}

	svc := backend.NewService(backend.Options{
		Info: backend.Info{
			Name:        cfg.Backend.AppName,
			Version:     cfg.Backend.Version,
			Environment: cfg.Backend.Environment,
		},
		Provider: provider,
		Store:    store,
		Index:    index,
		Cache:    cache,
		Parser: core.NewParser(core.ParseOptions{
			InvalidUTF8: core.UTF8Mode(strings.ToLower(cfg.Ingest.InvalidUTF8)),
			MaxBytes:    cfg.Backend.MaxFileSize,
		}),
		Logger: slog.Default(),
	})

	if n, err := svc.Restore(ctx); err != nil {
		slog.Warn("failed to index stored uploads", "error", err)
	} else if n > 0 {
		slog.Info("indexed stored uploads", "count", n)
	}

	slog.Info("configuration loaded",
		"port", cfg.Backend.Port,
		"model", provider.Name(),
		"upload_dir", store.Dir(),
		"file_index", index.Name(),
		"answer_cache", cache.Name(),
		"environment", cfg.Backend.Environment,
	)

	server := backend.NewServer(cfg, svc)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(cfg.BackendAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openIndex uses PostgreSQL when DATABASE_URL is set and an in-memory index
// otherwise.
func openIndex(ctx context.Context, cfg *config.Config) (backend.FileIndex, func(), error) {
	if cfg.Database.URL == "" {
		return backend.NewMemoryIndex(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	index, err := backend.NewPostgresIndex(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return index, pool.Close, nil
}

// openCache uses Redis when REDIS_URL is set. A Redis that cannot be reached
// disables caching rather than stopping the service.
func openCache(ctx context.Context, cfg *config.Config) backend.AnswerCache {
	if cfg.Cache.RedisURL == "" {
		return backend.NoopCache{}
	}

	cache, err := backend.NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
	if err != nil {
		slog.Warn("answer cache disabled", "error", err)
		return backend.NoopCache{}
	}
	return cache
}
