package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/farmbid-backend/api/routes"
	"github.com/angelmondragon/farmbid-backend/internal/auctions"
	"github.com/angelmondragon/farmbid-backend/internal/delivery"
	"github.com/angelmondragon/farmbid-backend/internal/events"
	"github.com/angelmondragon/farmbid-backend/internal/feeds"
	"github.com/angelmondragon/farmbid-backend/internal/notifications"
	"github.com/angelmondragon/farmbid-backend/internal/ratings"
	"github.com/angelmondragon/farmbid-backend/internal/users"
	"github.com/angelmondragon/farmbid-backend/internal/wallet"
	"github.com/angelmondragon/farmbid-backend/pkg/bootstrap"
	"github.com/angelmondragon/farmbid-backend/pkg/config"
	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/env"
	"github.com/angelmondragon/farmbid-backend/pkg/instance"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/metrics"
	"github.com/angelmondragon/farmbid-backend/pkg/migrate"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/registry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	proc := bootstrap.Start("api")
	cfg, logg := proc.Config, proc.Logger
	boot := context.Background()

	dbClient := proc.Database(boot)
	proc.Check(migrate.MaybeRunDev(boot, cfg, logg, dbClient), "run dev migrations")
	redisClient := proc.Redis(boot)

	marketMetrics := metrics.NewMarketMetrics(prometheus.DefaultRegisterer)

	userService, err := users.NewService(users.NewRepository(dbClient.DB()))
	proc.Check(err, "create user service")

	broker, err := feeds.NewBroker(feeds.NewRedisTransport(redisClient), logg)
	proc.Check(err, "create feed broker")

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repo:      notifications.NewRepository(dbClient.DB()),
		Directory: userService,
		Feeds:     broker,
		Metrics:   marketMetrics,
		Logger:    logg,
	})
	proc.Check(err, "create notification service")

	emitter, err := newEmitter(cfg, logg, dbClient, notificationService, broker)
	proc.Check(err, "create event emitter")

	walletService, err := wallet.NewService(wallet.ServiceParams{
		DB:       dbClient,
		Repo:     wallet.NewRepository(dbClient.DB()),
		Currency: cfg.Market.Currency,
		Metrics:  marketMetrics,
		Logger:   logg,
	})
	proc.Check(err, "create wallet service")

	auctionService, err := auctions.NewService(auctions.ServiceParams{
		DB:      dbClient,
		Repo:    auctions.NewRepository(dbClient.DB()),
		Ledger:  walletService,
		Events:  emitter,
		Market:  cfg.Market,
		Metrics: marketMetrics,
		Logger:  logg,
	})
	proc.Check(err, "create auction service")

	deliveryService, err := delivery.NewService(delivery.ServiceParams{
		DB:     dbClient,
		Repo:   delivery.NewRepository(dbClient.DB()),
		Ledger: walletService,
		Events: emitter,
		Window: cfg.Market.DeliveryWindow,
		Logger: logg,
	})
	proc.Check(err, "create delivery service")

	ratingService, err := ratings.NewService(ratings.NewRepository(dbClient.DB()), userService, logg)
	proc.Check(err, "create rating service")

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx, stop := proc.Signals(map[string]any{
		"addr":         addr,
		"instance":     instance.GetID(),
		"eventingMode": cfg.Eventing.Mode,
	})
	defer stop()

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Store:          redisClient,
			Metrics:        marketMetrics,
			MetricsHandler: promhttp.Handler(),
			Services: routes.Services{
				Users:         userService,
				Wallet:        walletService,
				Auctions:      auctionService,
				Delivery:      deliveryService,
				Notifications: notificationService,
				Ratings:       ratingService,
				Feeds:         broker,
			},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logg.Info(ctx, "starting api server")
	proc.Finish(ctx, serve(ctx, server))
}

// serve runs the server until it fails or ctx ends, then drains in-flight
// requests for up to shutdownTimeout.
func serve(ctx context.Context, server *http.Server) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// newEmitter picks how marketplace events reach the fan-out. Inline mode
// hands them to the fan-out in process after commit; outbox mode stages a
// row for cmd/outbox-publisher and cmd/worker.
func newEmitter(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, notificationService notifications.Service, broker *feeds.Broker) (events.Emitter, error) {
	if cfg.Eventing.UsesOutbox() {
		return events.NewOutboxEmitter(dbClient, outbox.NewService(outbox.NewRepository(dbClient.DB()), logg))
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return nil, err
	}
	fanout, err := notifications.NewFanout(notifications.FanoutParams{
		Notifications: notificationService,
		Decoder:       eventRegistry,
		Feeds:         broker,
		Logger:        logg,
	})
	if err != nil {
		return nil, err
	}
	return events.NewInlineEmitter(fanout)
}
