// Package scheduler re-verifies document trees on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/wizzardx/davinci/internal/store"
	"github.com/wizzardx/davinci/pkg/schema"
)

// Job statuses recorded after each run.
const (
	StatusPassed = "passed"
	StatusFailed = "failed" // a critical property was violated
	StatusError  = "error"  // the run itself could not complete
)

// DefaultInterval is how often the store is polled for due jobs.
const DefaultInterval = 60 * time.Second

// JobRunner verifies the documents a job points at. Satisfied by the
// pipeline (avoids import cycle).
type JobRunner interface {
	RunJob(ctx context.Context, job *store.ScheduledJob) (runID string, failed bool, err error)
}

// Scheduler polls the store for due scheduled jobs and runs them.
type Scheduler struct {
	store    store.Store
	runner   JobRunner
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler polling every interval; a
// non-positive interval selects DefaultInterval.
func NewScheduler(s store.Store, runner JobRunner, logger *slog.Logger, interval time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger,
		interval: interval,
		inflight: make(map[string]struct{}),
	}
}

// AddJob validates the cron expression and persists a new enabled job whose
// first run is the next activation after now.
func (s *Scheduler) AddJob(ctx context.Context, name, cronExpr, root string, patterns []string) (*store.ScheduledJob, error) {
	now := time.Now().UTC()
	next, err := s.CalculateNextRun(cronExpr, now)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	job := &store.ScheduledJob{
		ID:             uuid.NewString(),
		Name:           name,
		CronExpression: cronExpr,
		Root:           root,
		Patterns:       patterns,
		Enabled:        true,
		NextRunAt:      &next,
		CreatedAt:      now,
	}
	if err := s.store.CreateScheduledJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("scheduled job added",
		slog.String("job_id", job.ID),
		slog.String("cron", cronExpr),
		slog.Time("next_run_at", next),
	)
	return job, nil
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks all enabled jobs and runs those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	jobs, err := s.enabledJobs(ctx)
	if err != nil {
		s.logger.Error("failed to list scheduled jobs", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, job := range jobs {
		if job.NextRunAt != nil && job.NextRunAt.After(now) {
			continue
		}
		s.runOnce(ctx, job, now)
	}
}

// RecoverMissed runs, once, every job whose next run passed while the
// scheduler was down.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	jobs, err := s.enabledJobs(ctx)
	if err != nil {
		return fmt.Errorf("list missed jobs: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, job := range jobs {
		if job.NextRunAt != nil && job.NextRunAt.Before(now) {
			if s.runOnce(ctx, job, now) {
				recovered++
			}
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered missed jobs", slog.Int("count", recovered))
	}
	return nil
}

func (s *Scheduler) enabledJobs(ctx context.Context) ([]*store.ScheduledJob, error) {
	enabled := true
	return s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Enabled: &enabled})
}

// runOnce runs a job unless it is already in flight. It reports whether the
// job ran and its status was recorded.
func (s *Scheduler) runOnce(ctx context.Context, job *store.ScheduledJob, now time.Time) bool {
	if !s.tryAcquire(job.ID) {
		return false
	}
	defer s.releaseJob(job.ID)

	if err := s.runJob(ctx, job, now); err != nil {
		s.logger.Error("failed to run scheduled job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// runJob executes a scheduled job and updates its timestamps.
func (s *Scheduler) runJob(ctx context.Context, job *store.ScheduledJob, now time.Time) error {
	s.logger.Info("running scheduled job",
		slog.String("job_id", job.ID),
		slog.String("name", job.Name),
		slog.String("root", job.Root),
	)

	runID, failed, err := s.runner.RunJob(ctx, job)
	status := StatusPassed
	switch {
	case err != nil:
		status = StatusError
		s.logger.Error("scheduled verification failed to run",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	case failed:
		status = StatusFailed
		s.logger.Warn("scheduled verification found critical violations",
			slog.String("job_id", job.ID),
			slog.String("run_id", runID),
		)
	}

	nextRun, err := s.CalculateNextRun(job.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for job %q: %w", job.ID, err)
	}
	return s.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{
		LastRunAt:     &now,
		NextRunAt:     &nextRun,
		LastRunStatus: status,
		LastRunID:     runID,
	})
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
