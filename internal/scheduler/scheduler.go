// Package scheduler advances audit status from elapsed time alone. Two rules,
// applied in bounded batches:
//
//  1. PLANNED with startDate in the past becomes IN_PROGRESS
//  2. IN_PROGRESS with endDate in the past becomes COMPLETED
//
// Both rules follow the forward state machine, so a pass is idempotent and
// monotonic: re-running finds nothing left to transition.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"conforma/internal/activity"
	"conforma/internal/audit/models"
	"conforma/internal/audit/service"
	"conforma/pkg/requestcontext"
)

// DefaultBatchSize bounds how many audits one pass touches per rule.
const DefaultBatchSize = 50

// Job runs the date-driven status pass.
type Job struct {
	audits    service.AuditStore
	recorder  *activity.Recorder
	logger    *slog.Logger
	metrics   *Metrics
	batchSize int
}

// Option configures the job.
type Option func(*Job)

// WithBatchSize overrides the per-rule batch bound.
func WithBatchSize(size int) Option {
	return func(j *Job) {
		if size > 0 {
			j.batchSize = size
		}
	}
}

// WithActivityRecorder sets the activity trail recorder.
func WithActivityRecorder(recorder *activity.Recorder) Option {
	return func(j *Job) { j.recorder = recorder }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(j *Job) { j.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) { j.logger = logger }
}

// New builds a scheduler job over the audit store.
func New(audits service.AuditStore, opts ...Option) *Job {
	j := &Job{audits: audits, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Pass applies both rules once and returns how many audits changed status.
// Per-row failures are logged and skipped; one bad row never aborts the batch.
func (j *Job) Pass(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	updated := 0

	due, err := j.audits.ListDueToStart(ctx, now, j.batchSize)
	if err != nil {
		return updated, fmt.Errorf("list audits due to start: %w", err)
	}
	updated += j.advance(ctx, due, models.AuditStatusInProgress, now)

	overdue, err := j.audits.ListOverdue(ctx, now, j.batchSize)
	if err != nil {
		return updated, fmt.Errorf("list overdue audits: %w", err)
	}
	updated += j.advance(ctx, overdue, models.AuditStatusCompleted, now)

	if j.metrics != nil {
		j.metrics.ObservePass(updated)
	}
	return updated, nil
}

func (j *Job) advance(ctx context.Context, audits []*models.Audit, target models.AuditStatus, now time.Time) int {
	advanced := 0
	for _, candidate := range audits {
		from := candidate.Status
		_, err := j.audits.Execute(ctx, candidate.ID,
			func(a *models.Audit) error {
				// Re-validated under the row lock: a concurrent manual change
				// or a competing pass may have advanced the audit already.
				return a.CanAutoAdvance(target)
			},
			func(a *models.Audit) {
				_, _ = a.ApplyStatus(target, now)
			},
		)
		if err != nil {
			if j.logger != nil {
				j.logger.WarnContext(ctx, "scheduler skipped audit",
					"audit_id", candidate.ID,
					"target", target,
					"error", err,
				)
			}
			continue
		}
		advanced++
		j.recorder.Record(ctx, activity.Entry{
			AuditID: candidate.ID,
			Action:  activity.ActionAuditAutoAdvanced,
			Detail:  fmt.Sprintf("auto-transitioned %s to %s", from, target),
		})
		if j.metrics != nil {
			j.metrics.IncrementTransitions(string(from), string(target))
		}
	}
	return advanced
}
