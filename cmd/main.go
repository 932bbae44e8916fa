/*
Package main is the entry point for the huddle server.

It loads configuration, initializes the global logger, selects the persistence, slow-mode
and avatar storage backends, starts the chat Hub and the HTTP server, and shuts everything
down gracefully on SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"huddle/internal/app/chat"
	"huddle/internal/app/db"
	"huddle/internal/app/slowmode"
	"huddle/internal/app/storage"
	"huddle/internal/app/store"
	"huddle/internal/configs"
	"huddle/internal/handler"
	"huddle/internal/pkg/logx"
	"huddle/internal/pkg/pow"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel)
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("pow_difficulty", cfg.PowDifficulty).
		Bool("postgres", cfg.DatabaseDSN != "").
		Bool("redis", cfg.RedisURL != "").
		Bool("s3", cfg.S3Enabled()).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataStore, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open store")
	}
	defer dataStore.Close()

	timers, closeTimers, err := openTimers(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to connect to Redis")
	}
	defer closeTimers()

	var objects storage.StorageService
	if cfg.S3Enabled() {
		objects, err = storage.NewStorageService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize object storage")
		}
	} else {
		logx.Warn("S3 settings incomplete, avatar uploads are disabled")
	}

	hub := chat.NewHub(chat.Deps{
		Authorizer:   dataStore,
		Messages:     dataStore,
		Channels:     dataStore,
		Servers:      dataStore,
		Timers:       timers,
		HistoryLimit: cfg.HistoryLimit,
	})
	go hub.Run()

	powManager := pow.NewManager(cfg.PowDifficulty)
	defer powManager.Stop()

	limiters := handler.NewLimiters()
	defer limiters.Stop()

	deps := &handler.AppDeps{
		Hub:     hub,
		Config:  cfg,
		Store:   dataStore,
		Avatars: storage.NewAvatars(objects),
		Pow:     powManager,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(deps, limiters),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("huddle server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Hijacked WebSocket connections are not covered by Shutdown; stopping the hub closes them.
	hub.Stop()

	logx.Info("Server gracefully stopped.")
}

// openStore selects Postgres when a DSN is configured and the seeded in-memory store otherwise.
func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, error) {
	if cfg.DatabaseDSN == "" {
		logx.Warn("DATABASE_URL not set, using the in-memory store with demo data")
		mem := store.NewMemoryStore()
		mem.SeedDemo()
		return mem, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	return db.NewStore(pool), nil
}

// openTimers selects the shared Redis slow-mode store when REDIS_URL is set.
func openTimers(ctx context.Context, cfg *configs.AppConfig) (slowmode.Store, func(), error) {
	if cfg.RedisURL == "" {
		return slowmode.NewMemoryStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return slowmode.NewRedisStore(client, slowmode.DefaultKeyPrefix), func() { _ = client.Close() }, nil
}
