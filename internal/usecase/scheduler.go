package usecase

import (
	"context"
	"log/slog"
	"time"

	"IdeaDigest/internal/ports"
)

// Scheduler wires the cron driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	opts     RunOptions
	logger   *slog.Logger
	// OnRun, when set, receives every finished run.
	OnRun func(*RunResult)
}

// NewScheduler returns a helper to start/stop recurring runs with opts.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, opts RunOptions, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, opts: opts, logger: logger.With("component", "scheduler")}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) {
		s.RunOnce(ctx, trigger)
	})
}

// RunOnce executes a single scheduled run for the trigger time.
func (s *Scheduler) RunOnce(ctx context.Context, trigger time.Time) *RunResult {
	opts := s.opts
	opts.Digest.Date = trigger
	result := s.pipeline.Run(ctx, opts)
	if result.Failed() {
		s.logger.Warn("scheduled run failed", "run_id", result.RunID, "errors", result.Errors, "sources_failed", result.SourcesFailed())
	} else {
		s.logger.Info("scheduled run complete", "run_id", result.RunID, "fetched", result.TotalFetched)
	}
	if s.OnRun != nil {
		s.OnRun(result)
	}
	return result
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
