package cron

import (
	"context"
	"sync"
	"time"
)

// Job is one periodic task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule orders jobs and tracks when each last ran. A job registered with
// a zero cadence runs on every cycle.
type Schedule struct {
	mu      sync.Mutex
	entries []*entry
}

type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

func NewSchedule() *Schedule {
	return &Schedule{}
}

// Every adds job to the schedule. Nil jobs are ignored so optional jobs can
// be passed straight from their constructors.
func (s *Schedule) Every(every time.Duration, job Job) *Schedule {
	if job == nil {
		return s
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &entry{job: job, every: every})
	return s
}

// Due returns the jobs whose cadence has elapsed at now, in registration
// order, and stamps them as run. A job that has never run is always due.
func (s *Schedule) Due(now time.Time) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Job
	for _, e := range s.entries {
		if !e.lastRun.IsZero() && now.Sub(e.lastRun) < e.every {
			continue
		}
		e.lastRun = now
		due = append(due, e.job)
	}
	return due
}

func (s *Schedule) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
