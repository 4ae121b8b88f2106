package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Leaser gates a pass behind a cross-replica lock. A nil Leaser means every
// tick runs, which is fine for single-replica deployments and tests.
type Leaser interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Runner drives the scheduler job on a fixed interval until the context ends.
type Runner struct {
	job      *Job
	interval time.Duration
	lease    Leaser
	logger   *slog.Logger
	metrics  *Metrics
}

func NewRunner(job *Job, interval time.Duration, lease Leaser, logger *slog.Logger) *Runner {
	return &Runner{
		job:      job,
		interval: interval,
		lease:    lease,
		logger:   logger,
		metrics:  job.metrics,
	}
}

// Run loops until ctx is cancelled. It runs one pass immediately so a fresh
// deployment catches up without waiting a full interval.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if r.lease != nil {
		held, err := r.lease.Acquire(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "scheduler lease acquire failed", "error", err)
			return
		}
		if !held {
			r.metrics.IncrementLeaseMisses()
			return
		}
		defer func() {
			if err := r.lease.Release(ctx); err != nil {
				r.logger.WarnContext(ctx, "scheduler lease release failed", "error", err)
			}
		}()
	}

	updated, err := r.job.Pass(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "scheduler pass failed", "error", err, "updated", updated)
		return
	}
	if updated > 0 {
		r.logger.InfoContext(ctx, "scheduler pass advanced audits", "updated", updated)
	}
}
