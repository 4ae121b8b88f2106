package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"conforma/internal/activity"
	id "conforma/pkg/domain"
	txcontext "conforma/pkg/platform/tx"
)

// Store appends activity entries to the activity_log table. Entries written
// inside a caller's transaction commit or roll back with the mutation they
// describe.
type Store struct {
	db *sql.DB
}

// New returns a postgres-backed activity store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, entry activity.Entry) error {
	query := `
		INSERT INTO activity_log (id, audit_id, actor_id, action, detail, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		uuid.UUID(entry.AuditID),
		uuid.UUID(entry.ActorID),
		string(entry.Action),
		entry.Detail,
		entry.RequestID,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert activity entry: %w", err)
	}
	return nil
}

func (s *Store) ListByAudit(ctx context.Context, auditID id.AuditID) ([]activity.Entry, error) {
	query := `
		SELECT audit_id, actor_id, action, detail, request_id, created_at
		FROM activity_log
		WHERE audit_id = $1
		ORDER BY created_at
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(auditID))
	if err != nil {
		return nil, fmt.Errorf("list activity entries: %w", err)
	}
	defer rows.Close()

	entries := make([]activity.Entry, 0)
	for rows.Next() {
		var (
			entry   activity.Entry
			rawAudit uuid.UUID
			rawActor uuid.UUID
		)
		if err := rows.Scan(&rawAudit, &rawActor, &entry.Action, &entry.Detail, &entry.RequestID, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity entry: %w", err)
		}
		entry.AuditID = id.AuditID(rawAudit)
		entry.ActorID = id.UserID(rawActor)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
