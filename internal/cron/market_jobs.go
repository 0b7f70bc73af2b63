package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/google/uuid"
)

// AuctionSweeper is the part of the auction engine the periodic jobs drive.
type AuctionSweeper interface {
	CloseEndedAuctions(ctx context.Context) ([]uuid.UUID, error)
	SweepExpiredDeliveries(ctx context.Context) ([]uuid.UUID, error)
}

type sweepJob struct {
	name string
	logg *logger.Logger
	run  func(ctx context.Context) ([]uuid.UUID, error)
	noun string
}

// NewCloseAuctionsJob closes active lots whose bidding window has ended.
func NewCloseAuctionsJob(sweeper AuctionSweeper, logg *logger.Logger) (Job, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("auction sweeper required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &sweepJob{name: "close-ended-auctions", logg: logg, run: sweeper.CloseEndedAuctions, noun: "auctions_closed"}, nil
}

// NewDeliverySweepJob refunds accepted lots whose delivery window elapsed.
func NewDeliverySweepJob(sweeper AuctionSweeper, logg *logger.Logger) (Job, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("auction sweeper required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &sweepJob{name: "delivery-deadline-sweep", logg: logg, run: sweeper.SweepExpiredDeliveries, noun: "escrows_refunded"}, nil
}

func (j *sweepJob) Name() string { return j.name }

// Run reports partial progress even when some lots failed.
func (j *sweepJob) Run(ctx context.Context) error {
	ids, err := j.run(ctx)
	if len(ids) > 0 {
		j.logg.Info(j.logg.WithField(ctx, j.noun, len(ids)), "sweep applied")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	return nil
}
