package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/noorbazaar/storefront-backend/api/routes"
	"github.com/noorbazaar/storefront-backend/internal/cache"
	"github.com/noorbazaar/storefront-backend/internal/cache/gateway"
	"github.com/noorbazaar/storefront-backend/internal/cart"
	"github.com/noorbazaar/storefront-backend/internal/chat"
	"github.com/noorbazaar/storefront-backend/internal/chat/presence"
	"github.com/noorbazaar/storefront-backend/pkg/config"
	"github.com/noorbazaar/storefront-backend/pkg/db"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
	"github.com/noorbazaar/storefront-backend/pkg/metrics"
	"github.com/noorbazaar/storefront-backend/pkg/migrate"
	"github.com/noorbazaar/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

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

	cacheMetrics := metrics.NewCacheMetrics(prometheus.DefaultRegisterer)
	chatMetrics := metrics.NewChatMetrics(prometheus.DefaultRegisterer)

	cacheManager, err := cache.NewManager(cache.Options{
		Storage:     cache.NewRedisStorage(redisClient),
		BudgetBytes: cfg.Cache.BudgetBytes,
		DefaultTTL:  cfg.Cache.DefaultTTL,
		Metrics:     cacheMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cache manager", err)
		os.Exit(1)
	}
	cacheManager.Cleanup(context.Background())

	cartService, err := cart.NewService(cart.NewRedisSnapshotStore(redisClient, cfg.Cart.SnapshotTTL), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	chatService, err := chat.NewService(chat.NewRepository(dbClient.DB()), redisClient, cfg.Chat, logg, chatMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create chat service", err)
		os.Exit(1)
	}

	presenceTracker, err := presence.NewTracker(redisClient, cfg.Presence, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create presence tracker", err)
		os.Exit(1)
	}

	var fetcher gateway.Fetcher
	if cfg.Gateway.UpstreamBase != "" {
		fetcher, err = gateway.NewUpstreamFetcher(cfg.Gateway.UpstreamBase, nil)
		if err != nil {
			logg.Error(context.Background(), "failed to create gateway fetcher", err)
			os.Exit(1)
		}
	}
	cacheGateway, err := gateway.New(cfg.Gateway, gateway.NewRedisStore(redisClient), fetcher, logg, cacheMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create cache gateway", err)
		os.Exit(1)
	}
	cacheGateway.Install(context.Background())
	cacheGateway.Activate(context.Background())

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, cartService, chatService, chat.NewRedisFeedSource(redisClient), chatMetrics, presenceTracker, cacheManager, cacheGateway),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
