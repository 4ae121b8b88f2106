package action

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

// Postgres persists corrective actions in the corrective_actions table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a postgres-backed corrective-action store.
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

const actionColumns = `id, audit_id, finding_id, title, description, action_type, assigned_to_id,
	due_date, status, evidence, completed_at, verified_at, verified_by_id, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, action *models.CorrectiveAction) error {
	query := `
		INSERT INTO corrective_actions (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(action.ID),
		uuid.UUID(action.AuditID),
		nullFindingID(action.FindingID),
		action.Title,
		action.Description,
		string(action.Type),
		uuid.UUID(action.AssignedToID),
		action.DueDate,
		string(action.Status),
		action.Evidence,
		nullTime(action.CompletedAt),
		nullTime(action.VerifiedAt),
		nullUserID(action.VerifiedByID),
		action.CreatedAt,
		action.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert corrective action: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, actionID id.ActionID) (*models.CorrectiveAction, error) {
	query := `SELECT ` + actionColumns + ` FROM corrective_actions WHERE id = $1`
	return scanAction(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(actionID)))
}

func (s *Postgres) ListByAudit(ctx context.Context, auditID id.AuditID) ([]*models.CorrectiveAction, error) {
	query := `SELECT ` + actionColumns + ` FROM corrective_actions WHERE audit_id = $1 ORDER BY created_at`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(auditID))
	if err != nil {
		return nil, fmt.Errorf("list corrective actions: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

func (s *Postgres) ListByFinding(ctx context.Context, findingID id.FindingID) ([]*models.CorrectiveAction, error) {
	query := `SELECT ` + actionColumns + ` FROM corrective_actions WHERE finding_id = $1 ORDER BY created_at`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(findingID))
	if err != nil {
		return nil, fmt.Errorf("list corrective actions by finding: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

// CountUnverifiedByFinding counts sibling actions still short of VERIFIED.
func (s *Postgres) CountUnverifiedByFinding(ctx context.Context, findingID id.FindingID) (int, error) {
	query := `
		SELECT COUNT(*) FROM corrective_actions
		WHERE finding_id = $1 AND status <> $2
	`
	var count int
	err := s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(findingID),
		string(models.ActionStatusVerified),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unverified actions: %w", err)
	}
	return count, nil
}

func (s *Postgres) CountByStatus(ctx context.Context, auditID id.AuditID) (map[models.ActionStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM corrective_actions WHERE audit_id = $1 GROUP BY status`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(auditID))
	if err != nil {
		return nil, fmt.Errorf("count actions by status: %w", err)
	}
	defer rows.Close()
	counts := make(map[models.ActionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		counts[models.ActionStatus(status)] = count
	}
	return counts, rows.Err()
}

// Execute locks the action row, runs validate and mutate, and persists the result.
func (s *Postgres) Execute(ctx context.Context, actionID id.ActionID, validate func(*models.CorrectiveAction) error, mutate func(*models.CorrectiveAction)) (*models.CorrectiveAction, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, actionID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin action update: %w", err)
	}
	txCtx := txcontext.WithTx(ctx, tx)
	action, err := s.executeLocked(txCtx, actionID, validate, mutate)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit action update: %w", err)
	}
	return action, nil
}

func (s *Postgres) executeLocked(ctx context.Context, actionID id.ActionID, validate func(*models.CorrectiveAction) error, mutate func(*models.CorrectiveAction)) (*models.CorrectiveAction, error) {
	query := `SELECT ` + actionColumns + ` FROM corrective_actions WHERE id = $1 FOR UPDATE`
	action, err := scanAction(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(actionID)))
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(action); err != nil {
			return nil, err
		}
	}
	mutate(action)

	update := `
		UPDATE corrective_actions
		SET description = $2, status = $3, evidence = $4, completed_at = $5,
		    verified_at = $6, verified_by_id = $7, updated_at = $8
		WHERE id = $1
	`
	if _, err := s.execer(ctx).ExecContext(ctx, update,
		uuid.UUID(action.ID),
		action.Description,
		string(action.Status),
		action.Evidence,
		nullTime(action.CompletedAt),
		nullTime(action.VerifiedAt),
		nullUserID(action.VerifiedByID),
		action.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update corrective action: %w", err)
	}
	return action, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*models.CorrectiveAction, error) {
	var (
		action      models.CorrectiveAction
		actionID    uuid.UUID
		auditID     uuid.UUID
		findingID   uuid.NullUUID
		assignedTo  uuid.UUID
		completedAt sql.NullTime
		verifiedAt  sql.NullTime
		verifiedBy  uuid.NullUUID
	)
	err := row.Scan(
		&actionID,
		&auditID,
		&findingID,
		&action.Title,
		&action.Description,
		&action.Type,
		&assignedTo,
		&action.DueDate,
		&action.Status,
		&action.Evidence,
		&completedAt,
		&verifiedAt,
		&verifiedBy,
		&action.CreatedAt,
		&action.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan corrective action: %w", err)
	}
	action.ID = id.ActionID(actionID)
	action.AuditID = id.AuditID(auditID)
	action.AssignedToID = id.UserID(assignedTo)
	if findingID.Valid {
		parent := id.FindingID(findingID.UUID)
		action.FindingID = &parent
	}
	if completedAt.Valid {
		action.CompletedAt = &completedAt.Time
	}
	if verifiedAt.Valid {
		action.VerifiedAt = &verifiedAt.Time
	}
	if verifiedBy.Valid {
		verifier := id.UserID(verifiedBy.UUID)
		action.VerifiedByID = &verifier
	}
	return &action, nil
}

func scanActions(rows *sql.Rows) ([]*models.CorrectiveAction, error) {
	actions := make([]*models.CorrectiveAction, 0)
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
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

func nullFindingID(findingID *id.FindingID) uuid.NullUUID {
	if findingID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*findingID), Valid: true}
}
