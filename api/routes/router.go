package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/farmbid-backend/api/controllers"
	"github.com/angelmondragon/farmbid-backend/api/middleware"
	"github.com/angelmondragon/farmbid-backend/internal/notifications"
	"github.com/angelmondragon/farmbid-backend/pkg/config"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/farmbid-backend/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs: replay records, rate
// limit counters and readiness.
type Store interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// RatingService covers both rating writes and public rating reads.
type RatingService interface {
	controllers.RatingService
	controllers.RatingReader
}

// Services are the domain services exposed over HTTP.
type Services struct {
	Users         controllers.ProfileService
	Wallet        controllers.WalletService
	Auctions      controllers.AuctionService
	Delivery      controllers.DeliveryService
	Notifications notifications.Service
	Ratings       RatingService
	Feeds         controllers.FeedSubscriber
}

type RouterParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      controllers.Pinger
	Store   Store
	Metrics *metrics.MarketMetrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Services       Services
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger
	svc := p.Services

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	bidPolicy := middleware.NewRateLimitPolicy("bids", time.Minute, cfg.App.BidRateLimit)
	farmerOnly := middleware.RequireRole(enums.RoleFarmer, logg)
	merchantOnly := middleware.RequireRole(enums.RoleMerchant, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Store))
	})
	if p.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", p.MetricsHandler)
	}

	// Mutations accept an Idempotency-Key. Money-moving routes keep their
	// replay records for a week.
	replay := middleware.Idempotent(p.Store, cfg.Eventing.RequestIdempotencyTTL, logg)
	settlement := middleware.Idempotent(p.Store, middleware.SettlementReplayTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/users", func(r chi.Router) {
			r.With(replay).Post("/me", controllers.RegisterProfile(svc.Users, logg))
			r.Get("/{userId}/ratings", controllers.UserRatings(svc.Ratings, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletFetch(svc.Wallet, logg))
			r.With(replay).Post("/init", controllers.WalletInit(svc.Wallet, logg))
			r.With(settlement).Post("/deposits", controllers.WalletDeposit(svc.Wallet, logg))
			r.Get("/transactions", controllers.WalletTransactions(svc.Wallet, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(svc.Auctions, logg))
			r.With(farmerOnly, replay).Post("/", controllers.CreateProduct(svc.Auctions, logg))
			r.Route("/{productId}", func(r chi.Router) {
				r.Get("/", controllers.GetProduct(svc.Auctions, logg))
				r.With(merchantOnly, middleware.RateLimit(bidPolicy, p.Store, logg), replay).
					Post("/bids", controllers.PlaceBid(svc.Auctions, logg))
				r.With(farmerOnly, settlement).Post("/respond", controllers.RespondToBid(svc.Auctions, logg))
				r.With(merchantOnly, settlement).Post("/confirm-delivery", controllers.ConfirmDelivery(svc.Delivery, logg))
			})
		})
		r.With(merchantOnly).Get("/deliveries/pending", controllers.PendingDeliveries(svc.Delivery, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(svc.Notifications, logg))
			r.With(replay).Post("/{notificationId}/read", controllers.MarkNotificationRead(svc.Notifications, logg))
			r.With(replay).Post("/read-all", controllers.MarkAllNotificationsRead(svc.Notifications, logg))
			if cfg.FeatureFlags.AllowTestNotifications && !cfg.App.IsProd() {
				r.Post("/test", controllers.SendTestNotification(svc.Notifications, logg))
			}
		})

		r.Route("/ratings", func(r chi.Router) {
			r.Get("/eligibility", controllers.RatingEligibility(svc.Ratings, logg))
			r.With(replay).Post("/", controllers.SubmitRating(svc.Ratings, logg))
		})

		feedOpts := controllers.FeedOptions{
			Subscriber:     svc.Feeds,
			AllowedOrigins: cfg.App.CORSOrigins,
			Metrics:        p.Metrics,
			Logger:         logg,
		}
		r.Route("/feeds", func(r chi.Router) {
			r.Get("/products/{productId}", controllers.ProductFeed(feedOpts))
			r.Get("/notifications", controllers.NotificationFeed(feedOpts))
		})
	})

	return r
}
