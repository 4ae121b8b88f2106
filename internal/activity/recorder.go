package activity

import (
	"context"
	"log/slog"

	id "conforma/pkg/domain"
	"conforma/pkg/requestcontext"
)

// Store is the append-only sink for activity entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByAudit(ctx context.Context, auditID id.AuditID) ([]Entry, error)
}

// Recorder stamps and appends activity entries. Append failures are logged and
// swallowed so a broken trail never blocks the mutation it describes.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder builds a recorder. A nil store disables recording.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record appends an entry best-effort, filling timestamp, actor, and request
// id from context when unset.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.store == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.ActorID.IsNil() {
		entry.ActorID = requestcontext.ActorID(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	if err := r.store.Append(ctx, entry); err != nil {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "activity recording failed",
				"action", entry.Action,
				"audit_id", entry.AuditID,
				"error", err,
			)
		}
	}
}

// List returns the trail for one audit, oldest first.
func (r *Recorder) List(ctx context.Context, auditID id.AuditID) ([]Entry, error) {
	if r == nil || r.store == nil {
		return nil, nil
	}
	return r.store.ListByAudit(ctx, auditID)
}
