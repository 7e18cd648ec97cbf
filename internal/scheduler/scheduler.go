// Package scheduler runs the periodic cache warm-up.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deusflow/hknews/internal/logger"
)

// Job is a scheduled task.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron schedules. A job still running when its
// next tick arrives is skipped for that tick.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a scheduler in the given timezone. Runs derive their context
// from ctx, so cancelling it aborts jobs in flight; timeout bounds each run.
func New(ctx context.Context, timezone string, timeout time.Duration) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{
		cron:    c,
		ctx:     ctx,
		timeout: timeout,
		jobs:    make(map[string]cron.EntryID),
	}, nil
}

func (s *Scheduler) run(name string, job Job) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	logger.Info("job started", "job", name)
	if err := job(ctx); err != nil {
		logger.Error("job failed", "job", name, "error", err)
		return err
	}
	logger.Info("job completed", "job", name, "duration", time.Since(start))
	return nil
}

// AddJob schedules job. schedule is a standard five-field cron spec, e.g.
// "*/3 * * * *".
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		_ = s.run(name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID
	s.mu.Unlock()

	logger.Info("job added", "job", name, "schedule", schedule)
	return nil
}

func (s *Scheduler) Start() {
	logger.Info("scheduler starting")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	logger.Info("scheduler stopping")
	return s.cron.Stop()
}

// RunNow executes job immediately, outside the schedule.
func (s *Scheduler) RunNow(name string, job Job) error {
	return s.run(name, job)
}

// JobInfo describes a scheduled job.
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// ListJobs reports every job with its next and previous run. Times are zero
// until the scheduler has started.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		infos = append(infos, JobInfo{Name: name, NextRun: entry.Next, LastRun: entry.Prev})
	}
	return infos
}
