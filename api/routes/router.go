package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noorbazaar/storefront-backend/api/controllers"
	"github.com/noorbazaar/storefront-backend/api/middleware"
	"github.com/noorbazaar/storefront-backend/internal/cache"
	"github.com/noorbazaar/storefront-backend/internal/cache/gateway"
	"github.com/noorbazaar/storefront-backend/internal/cart"
	"github.com/noorbazaar/storefront-backend/internal/chat"
	"github.com/noorbazaar/storefront-backend/internal/chat/presence"
	"github.com/noorbazaar/storefront-backend/pkg/config"
	"github.com/noorbazaar/storefront-backend/pkg/db"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
	"github.com/noorbazaar/storefront-backend/pkg/metrics"
	"github.com/noorbazaar/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	cartService cart.Service,
	chatService chat.Service,
	chatFeed chat.FeedSource,
	chatMetrics *metrics.ChatMetrics,
	presenceTracker *presence.Tracker,
	cacheManager *cache.Manager,
	cacheGateway *gateway.Gateway,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	if cacheGateway != nil {
		r.Handle("/gateway/*", http.StripPrefix("/gateway", cacheGateway))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(cartService, logg))
			r.Post("/items", controllers.CartAdd(cartService, logg))
			r.Delete("/items/{key}", controllers.CartRemove(cartService, logg))
			r.Post("/items/{key}/increase", controllers.CartIncrease(cartService, logg))
			r.Post("/items/{key}/decrease", controllers.CartDecrease(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, logg))
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/conversations", controllers.ChatStart(chatService, logg))
			r.Route("/conversations/{conversationID}", func(r chi.Router) {
				r.Post("/messages", controllers.ChatSend(chatService, logg))
				r.Post("/replies", controllers.ChatReply(chatService, logg))
				r.Get("/messages", controllers.ChatHistory(chatService, logg))
				r.Get("/stream", controllers.ChatStream(chatFeed, chatService, logg, chatMetrics))
				r.Post("/read", controllers.ChatMarkConversationRead(chatService, logg))
				r.Get("/unread", controllers.ChatUnread(chatService, cacheManager, logg))
				r.Post("/mute", controllers.ChatMute(chatService, logg))
				r.Post("/typing", controllers.ChatTyping(presenceTracker, logg))
				r.Get("/typing", controllers.ChatTypingStatus(presenceTracker, logg))
			})
			r.Post("/messages/{messageID}/read", controllers.ChatMarkRead(chatService, logg))
		})

		r.Route("/presence", func(r chi.Router) {
			r.Post("/", controllers.PresenceTrack(presenceTracker, logg))
			r.Post("/heartbeat", controllers.PresenceHeartbeat(presenceTracker, logg))
			r.Get("/", controllers.PresenceStatus(presenceTracker, logg))
		})

		if cacheGateway != nil {
			r.Post("/cache/control", controllers.CacheControl(cacheGateway, logg))
		}
	})

	return r
}
