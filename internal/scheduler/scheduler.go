// Package scheduler runs recurring batch patch jobs declared in config.
// Jobs fire on standard 5-field cron expressions; a failing job is logged
// and counted, never fatal to the scheduler or to sibling jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/sindano/internal/config"
	"github.com/jkaninda/sindano/internal/engine"
)

// BatchRunner is the slice of the engine the scheduler needs.
type BatchRunner interface {
	BatchProcess(ctx context.Context, identities []string, spec engine.PatchSpec, caps map[string]any) (map[string]*engine.Outcome, error)
}

// Scheduler fires configured batch jobs on their cron schedules.
type Scheduler struct {
	runner  BatchRunner
	jobs    []config.BatchJobConfig
	metrics *Metrics
	logger  *slog.Logger

	cron *cron.Cron
}

// New creates a Scheduler and validates every job's cron expression and
// spec file up front, so misconfiguration fails at startup rather than at
// first fire.
func New(runner BatchRunner, cfg *config.SchedulerConfig, metrics *Metrics, logger *slog.Logger) (*Scheduler, error) {
	if cfg == nil || len(cfg.Jobs) == 0 {
		return nil, fmt.Errorf("scheduler requires at least one configured job")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for _, job := range cfg.Jobs {
		if _, err := parser.Parse(job.Schedule); err != nil {
			return nil, fmt.Errorf("job %q: invalid cron expression %q: %w", job.Name, job.Schedule, err)
		}
		if _, err := engine.LoadSpecFile(job.SpecFile); err != nil {
			return nil, fmt.Errorf("job %q: %w", job.Name, err)
		}
	}

	return &Scheduler{
		runner:  runner,
		jobs:    cfg.Jobs,
		metrics: metrics,
		logger:  logger,
		cron:    cron.New(cron.WithParser(parser)),
	}, nil
}

// Start registers all jobs and begins the cron loop. Returns a stop function
// that waits for in-flight jobs to finish.
func (s *Scheduler) Start(ctx context.Context) (func(), error) {
	for i := range s.jobs {
		job := s.jobs[i]
		_, err := s.cron.AddFunc(job.Schedule, func() {
			s.fireJob(ctx, job)
		})
		if err != nil {
			return nil, fmt.Errorf("registering job %q: %w", job.Name, err)
		}
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "batch scheduler started",
		slog.Int("jobs", len(s.jobs)),
	)

	return func() {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		s.logger.Info("batch scheduler stopped")
	}, nil
}

// fireJob runs a single scheduled batch. The spec file is re-read on every
// fire so edits take effect without a restart.
func (s *Scheduler) fireJob(ctx context.Context, job config.BatchJobConfig) {
	start := time.Now()

	s.logger.InfoContext(ctx, "firing batch job",
		slog.String("name", job.Name),
		slog.Int("documents", len(job.Documents)),
	)
	if s.metrics != nil {
		s.metrics.JobsFired.Inc()
	}

	spec, err := engine.LoadSpecFile(job.SpecFile)
	if err != nil {
		s.logger.ErrorContext(ctx, "batch job spec load failed",
			slog.String("name", job.Name),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.JobsFailed.Inc()
		}
		return
	}

	outcomes, err := s.runner.BatchProcess(ctx, job.Documents, spec, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "batch job rejected",
			slog.String("name", job.Name),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.JobsFailed.Inc()
		}
		return
	}

	var failed int
	for identity, outcome := range outcomes {
		if !outcome.OK() {
			failed++
			s.logger.WarnContext(ctx, "batch job document failed",
				slog.String("name", job.Name),
				slog.String("identity", identity),
				slog.Any("errors", outcome.Errors),
			)
		}
	}

	if s.metrics != nil {
		s.metrics.RunDuration.Observe(time.Since(start).Seconds())
		if failed == 0 {
			s.metrics.JobsSucceeded.Inc()
		} else {
			s.metrics.JobsFailed.Inc()
		}
	}

	s.logger.InfoContext(ctx, "batch job finished",
		slog.String("name", job.Name),
		slog.Int("documents", len(outcomes)),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)),
	)
}
