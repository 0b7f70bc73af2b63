package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/farmbid-backend/internal/feeds"
	"github.com/angelmondragon/farmbid-backend/internal/notifications"
	"github.com/angelmondragon/farmbid-backend/internal/users"
	"github.com/angelmondragon/farmbid-backend/pkg/bootstrap"
	"github.com/angelmondragon/farmbid-backend/pkg/instance"
	"github.com/angelmondragon/farmbid-backend/pkg/metrics"
	"github.com/angelmondragon/farmbid-backend/pkg/migrate"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/registry"
)

func main() {
	proc := bootstrap.Start("worker")
	cfg, logg := proc.Config, proc.Logger
	boot := context.Background()

	dbClient := proc.Database(boot)
	proc.Check(migrate.MaybeRunDev(boot, cfg, logg, dbClient), "run dev migrations")
	redisClient := proc.Redis(boot)
	bus := proc.PubSub(boot, cfg.PubSub.NotificationSubscription)

	userService, err := users.NewService(users.NewRepository(dbClient.DB()))
	proc.Check(err, "create user service")

	broker, err := feeds.NewBroker(feeds.NewRedisTransport(redisClient), logg)
	proc.Check(err, "create feed broker")

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repo:      notifications.NewRepository(dbClient.DB()),
		Directory: userService,
		Feeds:     broker,
		Metrics:   metrics.NewMarketMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
	})
	proc.Check(err, "create notification service")

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Check(err, "build event registry")

	fanout, err := notifications.NewFanout(notifications.FanoutParams{
		Notifications: notificationService,
		Decoder:       eventRegistry,
		Feeds:         broker,
		Logger:        logg,
	})
	proc.Check(err, "create notification fan-out")

	tracker, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL, idempotency.DefaultLease)
	proc.Check(err, "create idempotency manager")

	consumer, err := notifications.NewConsumer(fanout, bus.NotificationSubscription(), tracker, logg)
	proc.Check(err, "create notification consumer")

	service, err := NewService(ServiceParams{
		Logger:               logg,
		DB:                   dbClient,
		Redis:                redisClient,
		PubSub:               bus,
		NotificationConsumer: consumer,
		InstanceID:           instance.GetID(),
	})
	proc.Check(err, "create worker")

	ctx, stop := proc.Signals(nil)
	defer stop()
	logg.Info(ctx, "starting worker")
	proc.Finish(ctx, service.Run(ctx))
}
