package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"formgenie/internal/app"
	"formgenie/internal/config"
	"formgenie/internal/crypto"
	"formgenie/internal/drive"
	"formgenie/internal/gateway"
	"formgenie/internal/guard"
	"formgenie/internal/metrics"
	"formgenie/internal/profile"
	"formgenie/internal/providers/registry"
	"formgenie/internal/server"
	"formgenie/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("storage", cfg.Storage.Driver).
		Str("ai_provider", cfg.AI.Provider).
		Str("model", cfg.AI.Model).
		Bool("sealed", cfg.Crypto.Enabled()).
		Msg("starting formgenie")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
	}

	backend, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		DSN:         cfg.Storage.DSN,
		AutoMigrate: cfg.Storage.AutoMigrate,
		Redis:       rdb,
		RedisPrefix: cfg.Redis.Prefix,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer backend.Close()

	var port storage.Port = backend
	if cfg.Crypto.Enabled() {
		ring, err := crypto.NewKeyRing(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize key ring")
		}
		sealed := storage.NewSealed(backend, ring)
		n, err := sealed.Rekey(ctx, profile.WipeKeys()...)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to rekey snapshots")
		}
		log.Info().Str("key_id", ring.CurrentKeyID()).Int("snapshots", n).Msg("snapshots sealed")
		port = sealed
	}

	m := metrics.Global()
	provider, err := registry.Build(ctx, registry.BuildOptions{
		Kind:        cfg.AI.Provider,
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		HTTPClient:  &http.Client{Timeout: cfg.Client.Timeout},
		MaxRetries:  cfg.Client.MaxRetries,
		BackoffBase: cfg.Client.BackoffBase,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build ai provider")
	}
	gw := gateway.New(gateway.Config{
		Provider:       provider,
		Model:          cfg.AI.Model,
		ThinkingBudget: cfg.AI.ThinkingBudget,
		Logger:         log.Logger,
		Metrics:        m,
	})

	var gate *guard.Gate
	if rdb != nil {
		gate = guard.NewGate(
			guard.NewRedisFlags(rdb, cfg.Redis.Prefix+"inflight:", cfg.Guard.InFlightTTL),
			guard.NewRateLimiter(rdb, cfg.Redis.Prefix+"ratelimit:", cfg.Guard.PerHour),
		)
	} else {
		gate = guard.NewGate(guard.NewMemoryFlags(), guard.NewMemoryLimiter(cfg.Guard.PerHour))
	}

	wsCfg := app.Config{
		Port:    port,
		AI:      gw,
		Gate:    gate,
		Metrics: m,
		Logger:  log.Logger,
	}
	if tokens := drive.StaticToken(cfg.Drive.AccessToken); tokens != nil {
		wsCfg.Drive = drive.New(drive.Config{
			TokenSource: tokens,
			BaseURL:     cfg.Drive.BaseURL,
			UploadURL:   cfg.Drive.UploadURL,
			HTTPClient:  &http.Client{Timeout: cfg.Client.Timeout},
		})
		log.Info().Msg("drive integration enabled")
	}
	ws := app.New(ctx, wsCfg)

	errCh := make(chan error, 1)
	httpServer := &http.Server{
		Addr: cfg.HTTP.ListenAddr,
		Handler: server.New(server.Config{
			Workspace:   ws,
			Logger:      log.Logger,
			HealthPath:  cfg.HTTP.HealthPath,
			MetricsPath: cfg.HTTP.MetricsPath,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
