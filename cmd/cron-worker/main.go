package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/farmbid-backend/internal/auctions"
	"github.com/angelmondragon/farmbid-backend/internal/cron"
	"github.com/angelmondragon/farmbid-backend/internal/events"
	"github.com/angelmondragon/farmbid-backend/internal/wallet"
	"github.com/angelmondragon/farmbid-backend/pkg/bootstrap"
	"github.com/angelmondragon/farmbid-backend/pkg/metrics"
	"github.com/angelmondragon/farmbid-backend/pkg/migrate"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
)

func main() {
	proc := bootstrap.Start("cron-worker")
	cfg, logg := proc.Config, proc.Logger
	boot := context.Background()

	dbClient := proc.Database(boot)
	proc.Check(migrate.MaybeRunDev(boot, cfg, logg, dbClient), "run dev migrations")
	redisClient := proc.Redis(boot)

	marketMetrics := metrics.NewMarketMetrics(prometheus.DefaultRegisterer)

	walletService, err := wallet.NewService(wallet.ServiceParams{
		DB:       dbClient,
		Repo:     wallet.NewRepository(dbClient.DB()),
		Currency: cfg.Market.Currency,
		Metrics:  marketMetrics,
		Logger:   logg,
	})
	proc.Check(err, "create wallet service")

	// Sweeps run outside the API process, so their events always go through
	// the outbox regardless of the eventing mode.
	outboxRepo := outbox.NewRepository(dbClient.DB())
	emitter, err := events.NewOutboxEmitter(dbClient, outbox.NewService(outboxRepo, logg))
	proc.Check(err, "create outbox emitter")

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

	closeJob, err := cron.NewCloseAuctionsJob(auctionService, logg)
	proc.Check(err, "create close auctions job")
	sweepJob, err := cron.NewDeliverySweepJob(auctionService, logg)
	proc.Check(err, "create delivery sweep job")
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		Repository:   outboxRepo,
		DLQ:          outbox.NewDLQRepository(dbClient.DB()),
		Retention:    cfg.Outbox.Retention,
		DLQRetention: cfg.Outbox.DLQRetention,
	})
	proc.Check(err, "create outbox retention job")

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+lockEnv(cfg.App.Env)), cfg.Cron.LockTTL)
	proc.Check(err, "create cron lock")

	service, err := cron.NewService(cron.ServiceParams{
		Logger: logg,
		Schedule: cron.NewSchedule().
			Every(0, closeJob).
			Every(0, sweepJob).
			Every(cfg.Cron.RetentionEvery, retentionJob),
		Lock:    lock,
		Metrics: metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Tick:    cfg.Cron.Tick,
	})
	proc.Check(err, "create cron service")

	ctx, stop := proc.Signals(nil)
	defer stop()
	logg.Info(ctx, "starting cron worker")
	proc.Finish(ctx, service.Run(ctx))
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
