package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v4/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/davidwehrlin/tag-master/internal/auth"
	"github.com/davidwehrlin/tag-master/internal/config"
	"github.com/davidwehrlin/tag-master/internal/health"
	"github.com/davidwehrlin/tag-master/internal/limiter"
	"github.com/davidwehrlin/tag-master/internal/limiter/store"
	"github.com/davidwehrlin/tag-master/internal/logger"
	"github.com/davidwehrlin/tag-master/internal/migrations"
	"github.com/davidwehrlin/tag-master/internal/server"
	"github.com/davidwehrlin/tag-master/internal/storage"
)

const healthCheckInterval = 30 * time.Second

type appStore interface {
	server.Store
	Close() error
}

func main() {
	loader, err := config.NewLoader(config.GetConfigPath())
	if err != nil {
		logger.New("ERROR", false).Fatalf("Failed to load config: %v", err)
	}
	cfg := loader.Config()

	log := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	loader.Subscribe(func(c *config.Config) {
		log.SetLevel(c.LogLevel)
		log.Infof("Config reloaded, log level %s", c.LogLevel)
	})
	loader.Watch(func(err error) {
		log.Errorf("Config reload failed: %v", err)
	})

	ctx := context.Background()

	// Инициализация хранилища
	db, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer db.Close()

	checker := health.NewChecker(healthCheckInterval, cfg.MonitoringWebhookURL, log)
	checker.Add("database", db.Ping)

	// Инициализация rate limiter
	var redisClient *redis.Client
	if cfg.RateLimit.Backend == "redis" || cfg.Redis.StatsEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		checker.Add("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	rateLimiter, err := newRateLimiter(cfg, redisClient)
	if err != nil {
		log.Fatalf("Failed to create rate limiter: %v", err)
	}

	var stats limiter.StatsRecorder = store.NewMemoryStats()
	if cfg.Redis.StatsEnabled {
		stats = store.NewRedisStats(redisClient)
	}

	go checker.Start()
	defer checker.Stop()

	srv := server.NewServer(
		server.Config{
			Port:        cfg.Port,
			CORSOrigins: cfg.CORS.Origins,
			ExemptPaths: cfg.RateLimit.ExemptPaths,
		},
		db,
		auth.NewTokenIssuer(cfg.JWT.SecretKey, time.Duration(cfg.JWT.AccessTokenExpireMinutes)*time.Minute),
		rateLimiter,
		stats,
		log,
	)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	server.SetupGracefulShutdown(srv, cfg.ShutdownTimeout, log)
	log.Infof("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (appStore, error) {
	if cfg.Storage == "memory" {
		log.Warnf("Using in-memory storage, data is lost on restart")
		return storage.NewMemory(), nil
	}

	poolConfig, err := storage.ParsePostgresConfig(storage.PostgresConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, err
	}

	sqlDB := stdlib.OpenDB(*poolConfig.ConnConfig)
	defer sqlDB.Close()

	if err := migrations.Run(ctx, sqlDB, log); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage.NewPostgres(ctx, poolConfig)
}

func newRateLimiter(cfg *config.Config, client *redis.Client) (limiter.RateLimiter, error) {
	rateConfig := limiter.PerMinute(cfg.RateLimit.PerMinute)

	if cfg.RateLimit.Backend == "redis" {
		return store.NewRedisBucket(client, rateConfig), nil
	}

	return limiter.NewTokenBucket(
		rateConfig,
		limiter.WithMaxBuckets(cfg.RateLimit.MaxBuckets),
		limiter.WithIdleTTL(cfg.RateLimit.IdleTTL),
	)
}
