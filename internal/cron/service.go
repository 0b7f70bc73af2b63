// Package cron runs the marketplace's periodic sweeps. Every tick one worker
// wins a Redis lease and runs whichever jobs are due; the rest sit the
// cycle out.
package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/metrics"
)

const defaultTick = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Schedule *Schedule
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Tick     time.Duration
	// Now is overridable in tests.
	Now func() time.Time
}

type Service struct {
	logg     *logger.Logger
	schedule *Schedule
	lock     Lock
	metrics  *metrics.JobMetrics
	tick     time.Duration
	now      func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil {
		return nil, errors.New("cron: logger required")
	}
	if p.Lock == nil {
		return nil, errors.New("cron: lock required")
	}
	s := &Service{
		logg:     p.Logger,
		schedule: p.Schedule,
		lock:     p.Lock,
		metrics:  p.Metrics,
		tick:     p.Tick,
		now:      p.Now,
	}
	if s.schedule == nil {
		s.schedule = NewSchedule()
	}
	if s.tick <= 0 {
		s.tick = defaultTick
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run ticks until ctx is cancelled. The first cycle starts immediately.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tick": s.tick.String(),
		"jobs": s.schedule.Len(),
	}), "cron.start")

	for {
		if err := s.cycle(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) cycle(ctx context.Context) error {
	unlock, err := s.lock.TryLock(ctx)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if unlock == nil {
		s.metrics.CycleSkipped()
		s.logg.Debug(ctx, "cron.lease_held_elsewhere")
		return nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cron.lease_release_failed")
		}
	}()

	for _, job := range s.schedule.Due(s.now()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.run(ctx, job)
	}
	return nil
}

// run never propagates the job's error: one failing sweep must not starve
// the jobs after it.
func (s *Service) run(ctx context.Context, job Job) {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	started := time.Now()
	err := job.Run(ctx)
	took := time.Since(started)
	s.metrics.ObserveRun(job.Name(), took, s.now(), err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job_failed", err)
		return
	}
	s.logg.Debug(ctx, "cron.job_done")
}
