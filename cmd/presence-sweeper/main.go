package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/noorbazaar/storefront-backend/internal/cache"
	"github.com/noorbazaar/storefront-backend/internal/cron"
	"github.com/noorbazaar/storefront-backend/pkg/config"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
	"github.com/noorbazaar/storefront-backend/pkg/metrics"
	"github.com/noorbazaar/storefront-backend/pkg/redis"
)

const lockKeyFormat = "sf:presence-sweeper:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "presence-sweeper"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "presence-sweeper",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	cacheManager, err := cache.NewManager(cache.Options{
		Storage:     cache.NewRedisStorage(redisClient),
		BudgetBytes: cfg.Cache.BudgetBytes,
		DefaultTTL:  cfg.Cache.DefaultTTL,
		Metrics:     metrics.NewCacheMetrics(prometheus.DefaultRegisterer),
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cache manager", err)
		os.Exit(1)
	}

	cacheSweep, err := cron.NewCacheSweepJob(cacheManager)
	if err != nil {
		logg.Error(context.Background(), "failed to create cache sweep job", err)
		os.Exit(1)
	}
	presenceSweep, err := cron.NewPresenceSweepJob(cron.PresenceSweepJobParams{
		Logger: logg,
		Store:  redisClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create presence sweep job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(cacheSweep, presenceSweep),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Presence.RefreshInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting presence sweeper")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "presence sweeper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "presence sweeper shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
