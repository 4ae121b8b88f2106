package auditor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// Postgres persists auditors in the auditors table. A partial unique index on
// user_id (WHERE user_id IS NOT NULL) enforces one auditor per internal user.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a postgres-backed auditor store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const auditorColumns = `id, name, email, is_external, firm_name, user_id, created_at`

func (s *Postgres) Create(ctx context.Context, auditor *models.Auditor) error {
	return s.insert(ctx, auditor)
}

// CreateIfUserAvailable relies on the user_id unique index: a second internal
// auditor for the same user surfaces as sentinel.ErrConflict.
func (s *Postgres) CreateIfUserAvailable(ctx context.Context, auditor *models.Auditor) error {
	return s.insert(ctx, auditor)
}

func (s *Postgres) insert(ctx context.Context, auditor *models.Auditor) error {
	query := `
		INSERT INTO auditors (` + auditorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(auditor.ID),
		auditor.Name,
		auditor.Email,
		auditor.IsExternal,
		auditor.FirmName,
		nullUserID(auditor.UserID),
		auditor.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert auditor: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, auditorID id.AuditorID) (*models.Auditor, error) {
	query := `SELECT ` + auditorColumns + ` FROM auditors WHERE id = $1`
	return scanAuditor(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(auditorID)))
}

func (s *Postgres) FindByUserID(ctx context.Context, userID id.UserID) (*models.Auditor, error) {
	query := `SELECT ` + auditorColumns + ` FROM auditors WHERE user_id = $1`
	return scanAuditor(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(userID)))
}

func scanAuditor(row *sql.Row) (*models.Auditor, error) {
	var (
		auditor   models.Auditor
		auditorID uuid.UUID
		userID    uuid.NullUUID
	)
	err := row.Scan(
		&auditorID,
		&auditor.Name,
		&auditor.Email,
		&auditor.IsExternal,
		&auditor.FirmName,
		&userID,
		&auditor.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan auditor: %w", err)
	}
	auditor.ID = id.AuditorID(auditorID)
	if userID.Valid {
		backing := id.UserID(userID.UUID)
		auditor.UserID = &backing
	}
	return &auditor, nil
}

func nullUserID(userID *id.UserID) uuid.NullUUID {
	if userID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*userID), Valid: true}
}
