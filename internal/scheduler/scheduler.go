// Package scheduler triggers refresh cycles in-process on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
)

// Runner runs one refresh cycle.
type Runner interface {
	Run(ctx context.Context) (*models.BatchOutcome, error)
}

// Reporter receives the outcome of every successful cycle.
type Reporter interface {
	Report(ctx context.Context, outcome *models.BatchOutcome) error
}

// Run runs a cycle immediately and then on every tick until ctx is cancelled.
// Cycles never overlap: the next tick waits for the running cycle. A failed
// cycle is logged and the loop continues. reporter may be nil.
func Run(ctx context.Context, log *slog.Logger, runner Runner, reporter Reporter, interval time.Duration) {
	const opn = "scheduler.Run"
	log = log.With("op", opn)

	if interval <= 0 {
		log.InfoContext(ctx, "Scheduler disabled, waiting for external triggers")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.InfoContext(ctx, "Scheduler started", "interval", interval)

	runOnce(ctx, log, runner, reporter)

	for {
		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "Scheduler stopped")
			return
		case <-ticker.C:
			runOnce(ctx, log, runner, reporter)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, runner Runner, reporter Reporter) {
	outcome, err := runner.Run(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Scheduled refresh cycle failed", "error", err)
		return
	}

	if reporter == nil {
		return
	}
	if err = reporter.Report(ctx, outcome); err != nil {
		log.WarnContext(ctx, "Failed to report refresh cycle", "run_id", outcome.RunID, "error", err)
	}
}
