package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// Postgres persists audits in the audits table. Execute uses SELECT ... FOR
// UPDATE so validate and mutate run under a row lock, matching the in-memory
// store's atomicity.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a postgres-backed audit store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const auditColumns = `id, name, audit_type, status, start_date, end_date, auditor_id,
	auditee_id, department_id, objectives, scope, summary, created_by, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, audit *models.Audit) error {
	query := `
		INSERT INTO audits (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(audit.ID),
		audit.Name,
		string(audit.Type),
		string(audit.Status),
		audit.StartDate,
		nullTime(audit.EndDate),
		uuid.UUID(audit.AuditorID),
		nullUserID(audit.AuditeeID),
		nullDepartmentID(audit.DepartmentID),
		audit.Objectives,
		audit.Scope,
		audit.Summary,
		uuid.UUID(audit.CreatedBy),
		audit.CreatedAt,
		audit.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, auditID id.AuditID) (*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE id = $1`
	return scanAudit(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(auditID)))
}

func (s *Postgres) List(ctx context.Context, status models.AuditStatus) ([]*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY start_date`
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()
	return scanAudits(rows)
}

// Execute locks the audit row, runs validate and mutate, and persists the
// result. When no transaction is in context it opens one for the duration.
func (s *Postgres) Execute(ctx context.Context, auditID id.AuditID, validate func(*models.Audit) error, mutate func(*models.Audit)) (*models.Audit, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, auditID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin audit update: %w", err)
	}
	txCtx := txcontext.WithTx(ctx, tx)
	audit, err := s.executeLocked(txCtx, auditID, validate, mutate)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audit update: %w", err)
	}
	return audit, nil
}

func (s *Postgres) executeLocked(ctx context.Context, auditID id.AuditID, validate func(*models.Audit) error, mutate func(*models.Audit)) (*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE id = $1 FOR UPDATE`
	audit, err := scanAudit(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(auditID)))
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(audit); err != nil {
			return nil, err
		}
	}
	mutate(audit)

	update := `
		UPDATE audits
		SET status = $2, end_date = $3, summary = $4, updated_at = $5
		WHERE id = $1
	`
	if _, err := s.execer(ctx).ExecContext(ctx, update,
		uuid.UUID(audit.ID),
		string(audit.Status),
		nullTime(audit.EndDate),
		audit.Summary,
		audit.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update audit: %w", err)
	}
	return audit, nil
}

func (s *Postgres) ListDueToStart(ctx context.Context, now time.Time, limit int) ([]*models.Audit, error) {
	query := `
		SELECT ` + auditColumns + ` FROM audits
		WHERE status = $1 AND start_date <= $2
		ORDER BY start_date
		LIMIT $3
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(models.AuditStatusPlanned), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list audits due to start: %w", err)
	}
	defer rows.Close()
	return scanAudits(rows)
}

func (s *Postgres) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.Audit, error) {
	query := `
		SELECT ` + auditColumns + ` FROM audits
		WHERE status = $1 AND end_date IS NOT NULL AND end_date < $2
		ORDER BY start_date
		LIMIT $3
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(models.AuditStatusInProgress), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue audits: %w", err)
	}
	defer rows.Close()
	return scanAudits(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudit(row rowScanner) (*models.Audit, error) {
	var (
		audit      models.Audit
		auditID    uuid.UUID
		auditorID  uuid.UUID
		createdBy  uuid.UUID
		endDate    sql.NullTime
		auditee    uuid.NullUUID
		department uuid.NullUUID
	)
	err := row.Scan(
		&auditID,
		&audit.Name,
		&audit.Type,
		&audit.Status,
		&audit.StartDate,
		&endDate,
		&auditorID,
		&auditee,
		&department,
		&audit.Objectives,
		&audit.Scope,
		&audit.Summary,
		&createdBy,
		&audit.CreatedAt,
		&audit.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan audit: %w", err)
	}
	audit.ID = id.AuditID(auditID)
	audit.AuditorID = id.AuditorID(auditorID)
	audit.CreatedBy = id.UserID(createdBy)
	if endDate.Valid {
		audit.EndDate = &endDate.Time
	}
	if auditee.Valid {
		auditeeID := id.UserID(auditee.UUID)
		audit.AuditeeID = &auditeeID
	}
	if department.Valid {
		departmentID := id.DepartmentID(department.UUID)
		audit.DepartmentID = &departmentID
	}
	return &audit, nil
}

func scanAudits(rows *sql.Rows) ([]*models.Audit, error) {
	audits := make([]*models.Audit, 0)
	for rows.Next() {
		audit, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, audit)
	}
	return audits, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullUserID(userID *id.UserID) uuid.NullUUID {
	if userID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*userID), Valid: true}
}

func nullDepartmentID(departmentID *id.DepartmentID) uuid.NullUUID {
	if departmentID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*departmentID), Valid: true}
}
