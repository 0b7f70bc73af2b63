package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

// backlog hands out rows in batches until it runs dry.
type backlog struct {
	remaining int64
	cutoffs   []time.Time
	calls     int
	err       error
}

func (b *backlog) take(cutoff time.Time, limit int) (int64, error) {
	b.calls++
	b.cutoffs = append(b.cutoffs, cutoff)
	if b.err != nil {
		return 0, b.err
	}
	n := min(b.remaining, int64(limit))
	b.remaining -= n
	return n, nil
}

type fakeOutboxRepo struct{ backlog }

func (f *fakeOutboxRepo) DeletePublishedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	return f.take(cutoff, limit)
}

type fakeDLQRepo struct{ backlog }

func (f *fakeDLQRepo) DeleteFailedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	return f.take(cutoff, limit)
}

func newRetentionJob(t *testing.T, outbox *fakeOutboxRepo, dlq *fakeDLQRepo, batch int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		Repository: outbox,
		DLQ:        dlq,
		BatchSize:  batch,
	})
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionDrainsInBatches(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	outbox := &fakeOutboxRepo{backlog{remaining: 25}}
	dlq := &fakeDLQRepo{backlog{remaining: 3}}
	job := newRetentionJob(t, outbox, dlq, 10)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	require.Zero(t, outbox.remaining)
	require.Equal(t, 3, outbox.calls, "10 + 10 + 5")
	require.Equal(t, now.Add(-defaultOutboxRetention), outbox.cutoffs[0])

	require.Zero(t, dlq.remaining)
	require.Equal(t, 1, dlq.calls)
	require.Equal(t, now.Add(-defaultDLQRetention), dlq.cutoffs[0])
}

func TestOutboxRetentionStopsOnError(t *testing.T) {
	outbox := &fakeOutboxRepo{backlog{err: errors.New("lock timeout")}}
	dlq := &fakeDLQRepo{}
	job := newRetentionJob(t, outbox, dlq, 10)

	err := job.Run(context.Background())
	require.ErrorContains(t, err, "prune outbox_events")
	require.Zero(t, dlq.calls, "dlq is not pruned after a failure")
}

func TestOutboxRetentionHonoursCancellation(t *testing.T) {
	outbox := &fakeOutboxRepo{backlog{remaining: 1000}}
	job := newRetentionJob(t, outbox, &fakeDLQRepo{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, job.Run(ctx), context.Canceled)
	require.Zero(t, outbox.calls)
}

func TestNewOutboxRetentionJobValidates(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		Repository: &fakeOutboxRepo{},
	})
	require.Error(t, err)

	job := newRetentionJob(t, &fakeOutboxRepo{}, &fakeDLQRepo{}, 0)
	require.Equal(t, defaultPruneBatch, job.batch)
}
