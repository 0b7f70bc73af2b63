package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/farmbid-backend/pkg/bootstrap"
	"github.com/angelmondragon/farmbid-backend/pkg/metrics"
	"github.com/angelmondragon/farmbid-backend/pkg/migrate"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/registry"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")
	cfg, logg := proc.Config, proc.Logger
	boot := context.Background()

	dbClient := proc.Database(boot)
	proc.Check(migrate.MaybeRunDev(boot, cfg, logg, dbClient), "run dev migrations")
	bus := proc.PubSub(boot)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Check(err, "build event registry")

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        bus,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewMarketMetrics(prometheus.DefaultRegisterer),
	})
	proc.Check(err, "create outbox publisher")

	ctx, stop := proc.Signals(nil)
	defer stop()
	logg.Info(ctx, "starting outbox publisher")
	proc.Finish(ctx, service.Run(ctx))
}
