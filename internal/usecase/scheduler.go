package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"contentmaker/internal/ports"
)

// Scheduler wires the cron driver with the pipeline use case. Passes are
// serialized: a trigger arriving while the previous pass is still running is
// skipped.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
	running  atomic.Bool
}

// NewScheduler returns a helper to start/stop recurring passes.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if !s.running.CompareAndSwap(false, true) {
			s.logger.Warn("previous pass still running, skipping trigger", "trigger", trigger)
			return
		}
		defer s.running.Store(false)

		s.logger.Info("pass triggered", "trigger", trigger)
		s.pipeline.Run(ctx)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
