package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	defaultPruneBatch      = 500
)

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	Repository   outboxRetentionRepo
	DLQ          dlqRetentionRepo
	Retention    time.Duration
	DLQRetention time.Duration
	BatchSize    int
}

// outboxRetentionJob deletes published outbox rows and old dead letters in
// bounded batches, each its own statement, so a large backlog never holds
// locks for the whole sweep. Unpublished rows are never touched.
type outboxRetentionJob struct {
	logg   *logger.Logger
	tables []pruneTarget
	batch  int
	now    func() time.Time
}

type pruneTarget struct {
	table string
	keep  time.Duration
	prune func(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPruneBatch
	}
	return &outboxRetentionJob{
		logg: params.Logger,
		tables: []pruneTarget{
			{"outbox_events", orDefault(params.Retention, defaultOutboxRetention), params.Repository.DeletePublishedBefore},
			{"outbox_dlq", orDefault(params.DLQRetention, defaultDLQRetention), params.DLQ.DeleteFailedBefore},
		},
		batch: batch,
		now:   time.Now,
	}, nil
}

func orDefault(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	for _, target := range j.tables {
		cutoff := now.Add(-target.keep)
		total, err := j.drain(ctx, target, cutoff)
		if total > 0 {
			j.logg.Info(j.logg.WithFields(ctx, map[string]any{
				"table":  target.table,
				"cutoff": cutoff,
				"pruned": total,
			}), "outbox.retention_pruned")
		}
		if err != nil {
			return fmt.Errorf("prune %s: %w", target.table, err)
		}
	}
	return nil
}

func (j *outboxRetentionJob) drain(ctx context.Context, target pruneTarget, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := target.prune(ctx, cutoff, j.batch)
		total += n
		if err != nil || n < int64(j.batch) {
			return total, err
		}
	}
}
