// Package scheduler runs the periodic deadline sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/classforge/classroom-service/internal/services"
)

// Scheduler owns the cron runner for background jobs.
type Scheduler struct {
	cron    *cron.Cron
	sweeper services.SweeperService
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a scheduler. Overlapping sweep runs are skipped rather than
// queued.
func New(sweeper services.SweeperService, logger *slog.Logger, location *time.Location) *Scheduler {
	if location == nil {
		location = time.UTC
	}

	c := cron.New(
		cron.WithLocation(location),
		cron.WithChain(
			cron.SkipIfStillRunning(cron.VerbosePrintfLogger(slogPrintfAdapter{logger})),
			cron.Recover(cron.VerbosePrintfLogger(slogPrintfAdapter{logger})),
		),
	)

	return &Scheduler{
		cron:    c,
		sweeper: sweeper,
		logger:  logger,
		timeout: 10 * time.Minute,
	}
}

// Start registers the sweep job on the given cron spec and starts the runner.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.runSweep)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", "sweep_spec", spec)

	return nil
}

// Stop halts the runner and waits for a running job to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop timed out: %w", ctx.Err())
	}
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	summary, err := s.sweeper.RunSweep(ctx, time.Now())
	if err != nil {
		s.logger.Error("Deadline sweep failed", "error", err)
		return
	}

	s.logger.Info("Deadline sweep finished",
		"pairs", summary.Pairs,
		"updated", summary.Updated,
		"created", summary.Created,
		"skipped", summary.Skipped,
		"failures", summary.Failures)
}

// slogPrintfAdapter lets cron's printf-style logger write through slog.
type slogPrintfAdapter struct {
	logger *slog.Logger
}

func (a slogPrintfAdapter) Printf(format string, args ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
