// Package scheduler triggers conversation runs from cron expressions stored
// as scheduled jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/internal/workers"
	"github.com/rendis/chatflow/pkg/schema"
)

// Job statuses recorded after each run.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultInterval is how often the store is polled for due jobs.
const DefaultInterval = 60 * time.Second

// Runner executes one scheduled job and returns the id of the run it started.
type Runner interface {
	RunJob(ctx context.Context, job *store.ScheduledJob) (runID string, err error)
}

// Scheduler polls the store for due scheduled jobs and runs them on a worker pool.
type Scheduler struct {
	store    store.Store
	runner   Runner
	pool     *workers.Pool
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a new Scheduler. A nil pool runs one job at a time.
func NewScheduler(s store.Store, runner Runner, pool *workers.Pool, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = workers.NewPool(1, logger)
	}
	sch := &Scheduler{
		store:    s,
		runner:   runner,
		pool:     pool,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger,
		interval: DefaultInterval,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(sch)
	}
	return sch
}

// AddJob validates the cron expression, computes the first run time and
// persists the job. An empty ID is filled with a new UUID.
func (s *Scheduler) AddJob(ctx context.Context, job *store.ScheduledJob) error {
	if job.ScriptPath == "" {
		return schema.NewError(schema.ErrCodeValidation, "scheduled job needs a script path")
	}
	next, err := s.CalculateNextRun(job.CronExpression, s.now())
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression %q", job.CronExpression).WithCause(err)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.NextRunAt = &next
	return s.store.CreateScheduledJob(ctx, job)
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

	// Run an initial tick immediately.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dispatches every enabled job that is due and returns how many were
// submitted. Jobs still running from an earlier tick are skipped.
func (s *Scheduler) Tick(ctx context.Context) int {
	enabled := true
	jobs, err := s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list scheduled jobs", slog.String("error", err.Error()))
		return 0
	}

	now := s.now()
	submitted := 0
	for _, job := range jobs {
		if job.NextRunAt != nil && job.NextRunAt.After(now) {
			continue
		}
		if !s.tryAcquire(job.ID) {
			continue // already running (dedup)
		}
		err := s.pool.Submit(ctx, job.ID, func(ctx context.Context) error {
			defer s.releaseJob(job.ID)
			return s.runJob(ctx, job, now)
		})
		if err != nil {
			s.releaseJob(job.ID)
			s.logger.Error("failed to dispatch scheduled job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		submitted++
	}
	return submitted
}

// Wait blocks until dispatched jobs finish.
func (s *Scheduler) Wait() {
	s.pool.Wait()
}

// runJob executes a scheduled job and updates its timestamps.
func (s *Scheduler) runJob(ctx context.Context, job *store.ScheduledJob, now time.Time) error {
	logger := s.logger.With(slog.String("job_id", job.ID), slog.String("script", job.ScriptPath))
	logger.Info("running scheduled job")

	runID, err := s.runner.RunJob(ctx, job)
	status := StatusSuccess
	if err != nil {
		status = StatusError
		logger.Error("scheduled job execution failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}

	if uerr := s.updateJobStatus(ctx, job, now, status, runID); uerr != nil {
		return uerr
	}
	return err
}

func (s *Scheduler) updateJobStatus(ctx context.Context, job *store.ScheduledJob, now time.Time, status, runID string) error {
	nextRun, err := s.CalculateNextRun(job.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for job %q: %w", job.ID, err)
	}

	return s.store.UpdateScheduledJob(context.WithoutCancel(ctx), job.ID, store.ScheduledJobUpdate{
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

// Stop cancels the loop and waits for running jobs to finish.
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
	s.pool.Wait()

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed runs, once, every enabled job whose next run passed while
// the scheduler was down. It waits for them to finish.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	enabled := true
	jobs, err := s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list missed jobs: %w", err)
	}

	now := s.now()
	recovered := 0
	for _, job := range jobs {
		if job.NextRunAt == nil || !job.NextRunAt.Before(now) {
			continue
		}
		if !s.tryAcquire(job.ID) {
			continue
		}
		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Error("failed to recover missed job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		} else {
			recovered++
		}
		s.releaseJob(job.ID)
	}

	if recovered > 0 {
		s.logger.Info("recovered missed jobs", slog.Int("count", recovered))
	}
	return nil
}
