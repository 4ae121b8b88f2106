package finding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// Postgres persists findings in the findings table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a postgres-backed finding store.
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

const findingColumns = `id, audit_id, title, description, finding_type, status, priority,
	due_date, assigned_to_id, evidence, closed_at, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, finding *models.Finding) error {
	query := `
		INSERT INTO findings (` + findingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(finding.ID),
		uuid.UUID(finding.AuditID),
		finding.Title,
		finding.Description,
		string(finding.Type),
		string(finding.Status),
		string(finding.Priority),
		nullTime(finding.DueDate),
		nullUserID(finding.AssignedToID),
		finding.Evidence,
		nullTime(finding.ClosedAt),
		finding.CreatedAt,
		finding.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, findingID id.FindingID) (*models.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM findings WHERE id = $1`
	return scanFinding(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(findingID)))
}

func (s *Postgres) ListByAudit(ctx context.Context, auditID id.AuditID) ([]*models.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM findings WHERE audit_id = $1 ORDER BY created_at`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(auditID))
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

// ListOpenMajor returns the findings that currently block the audit's closure.
// "Major and unresolved" is a derived predicate, so it lives in a query rather
// than a database constraint.
func (s *Postgres) ListOpenMajor(ctx context.Context, auditID id.AuditID) ([]*models.Finding, error) {
	query := `
		SELECT ` + findingColumns + ` FROM findings
		WHERE audit_id = $1 AND finding_type = $2 AND status <> $3
		ORDER BY created_at
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query,
		uuid.UUID(auditID),
		string(models.FindingTypeMajorNonConformity),
		string(models.FindingStatusClosed),
	)
	if err != nil {
		return nil, fmt.Errorf("list open major findings: %w", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

func (s *Postgres) CountByType(ctx context.Context, auditID id.AuditID) (map[models.FindingType]int, error) {
	query := `SELECT finding_type, COUNT(*) FROM findings WHERE audit_id = $1 GROUP BY finding_type`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(auditID))
	if err != nil {
		return nil, fmt.Errorf("count findings by type: %w", err)
	}
	defer rows.Close()
	counts := make(map[models.FindingType]int)
	for rows.Next() {
		var findingType string
		var count int
		if err := rows.Scan(&findingType, &count); err != nil {
			return nil, fmt.Errorf("scan finding count: %w", err)
		}
		counts[models.FindingType(findingType)] = count
	}
	return counts, rows.Err()
}

// Execute locks the finding row, runs validate and mutate, and persists the result.
func (s *Postgres) Execute(ctx context.Context, findingID id.FindingID, validate func(*models.Finding) error, mutate func(*models.Finding)) (*models.Finding, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, findingID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin finding update: %w", err)
	}
	txCtx := txcontext.WithTx(ctx, tx)
	finding, err := s.executeLocked(txCtx, findingID, validate, mutate)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit finding update: %w", err)
	}
	return finding, nil
}

func (s *Postgres) executeLocked(ctx context.Context, findingID id.FindingID, validate func(*models.Finding) error, mutate func(*models.Finding)) (*models.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM findings WHERE id = $1 FOR UPDATE`
	finding, err := scanFinding(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(findingID)))
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(finding); err != nil {
			return nil, err
		}
	}
	mutate(finding)

	update := `
		UPDATE findings
		SET title = $2, description = $3, status = $4, priority = $5, due_date = $6,
		    assigned_to_id = $7, evidence = $8, closed_at = $9, updated_at = $10
		WHERE id = $1
	`
	if _, err := s.execer(ctx).ExecContext(ctx, update,
		uuid.UUID(finding.ID),
		finding.Title,
		finding.Description,
		string(finding.Status),
		string(finding.Priority),
		nullTime(finding.DueDate),
		nullUserID(finding.AssignedToID),
		finding.Evidence,
		nullTime(finding.ClosedAt),
		finding.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update finding: %w", err)
	}
	return finding, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row rowScanner) (*models.Finding, error) {
	var (
		finding   models.Finding
		findingID uuid.UUID
		auditID   uuid.UUID
		dueDate   sql.NullTime
		assignee  uuid.NullUUID
		closedAt  sql.NullTime
	)
	err := row.Scan(
		&findingID,
		&auditID,
		&finding.Title,
		&finding.Description,
		&finding.Type,
		&finding.Status,
		&finding.Priority,
		&dueDate,
		&assignee,
		&finding.Evidence,
		&closedAt,
		&finding.CreatedAt,
		&finding.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan finding: %w", err)
	}
	finding.ID = id.FindingID(findingID)
	finding.AuditID = id.AuditID(auditID)
	if dueDate.Valid {
		finding.DueDate = &dueDate.Time
	}
	if assignee.Valid {
		assignedTo := id.UserID(assignee.UUID)
		finding.AssignedToID = &assignedTo
	}
	if closedAt.Valid {
		finding.ClosedAt = &closedAt.Time
	}
	return &finding, nil
}

func scanFindings(rows *sql.Rows) ([]*models.Finding, error) {
	findings := make([]*models.Finding, 0)
	for rows.Next() {
		finding, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, finding)
	}
	return findings, rows.Err()
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
