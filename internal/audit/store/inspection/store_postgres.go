package inspection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// Postgres persists inspection items in the inspection_items table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a postgres-backed inspection-item store.
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

const itemColumns = `id, audit_id, area_name, item_name, description, standard_reference,
	compliance, comments, evidence, inspected_by_id, created_at, updated_at`

// CreateBatch inserts a whole checklist inside one transaction.
func (s *Postgres) CreateBatch(ctx context.Context, items []*models.InspectionItem) error {
	if _, ok := txcontext.From(ctx); ok {
		return s.insertAll(ctx, items)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checklist insert: %w", err)
	}
	txCtx := txcontext.WithTx(ctx, tx)
	if err := s.insertAll(txCtx, items); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checklist insert: %w", err)
	}
	return nil
}

func (s *Postgres) insertAll(ctx context.Context, items []*models.InspectionItem) error {
	query := `
		INSERT INTO inspection_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, item := range items {
		_, err := s.execer(ctx).ExecContext(ctx, query,
			uuid.UUID(item.ID),
			uuid.UUID(item.AuditID),
			item.AreaName,
			item.ItemName,
			item.Description,
			item.StandardReference,
			string(item.Compliance),
			item.Comments,
			item.Evidence,
			nullUserID(item.InspectedByID),
			item.CreatedAt,
			item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert inspection item: %w", err)
		}
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, itemID id.InspectionItemID) (*models.InspectionItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inspection_items WHERE id = $1`
	return scanItem(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(itemID)))
}

func (s *Postgres) ListByAudit(ctx context.Context, auditID id.AuditID) ([]*models.InspectionItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inspection_items WHERE audit_id = $1 ORDER BY area_name, created_at`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(auditID))
	if err != nil {
		return nil, fmt.Errorf("list inspection items: %w", err)
	}
	defer rows.Close()
	items := make([]*models.InspectionItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Execute locks the item row, runs validate and mutate, and persists the result.
func (s *Postgres) Execute(ctx context.Context, itemID id.InspectionItemID, validate func(*models.InspectionItem) error, mutate func(*models.InspectionItem)) (*models.InspectionItem, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, itemID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin item update: %w", err)
	}
	txCtx := txcontext.WithTx(ctx, tx)
	item, err := s.executeLocked(txCtx, itemID, validate, mutate)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit item update: %w", err)
	}
	return item, nil
}

func (s *Postgres) executeLocked(ctx context.Context, itemID id.InspectionItemID, validate func(*models.InspectionItem) error, mutate func(*models.InspectionItem)) (*models.InspectionItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inspection_items WHERE id = $1 FOR UPDATE`
	item, err := scanItem(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(itemID)))
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(item); err != nil {
			return nil, err
		}
	}
	mutate(item)

	update := `
		UPDATE inspection_items
		SET compliance = $2, comments = $3, evidence = $4, inspected_by_id = $5, updated_at = $6
		WHERE id = $1
	`
	if _, err := s.execer(ctx).ExecContext(ctx, update,
		uuid.UUID(item.ID),
		string(item.Compliance),
		item.Comments,
		item.Evidence,
		nullUserID(item.InspectedByID),
		item.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update inspection item: %w", err)
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.InspectionItem, error) {
	var (
		item      models.InspectionItem
		itemID    uuid.UUID
		auditID   uuid.UUID
		inspector uuid.NullUUID
	)
	err := row.Scan(
		&itemID,
		&auditID,
		&item.AreaName,
		&item.ItemName,
		&item.Description,
		&item.StandardReference,
		&item.Compliance,
		&item.Comments,
		&item.Evidence,
		&inspector,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan inspection item: %w", err)
	}
	item.ID = id.InspectionItemID(itemID)
	item.AuditID = id.AuditID(auditID)
	if inspector.Valid {
		inspectedBy := id.UserID(inspector.UUID)
		item.InspectedByID = &inspectedBy
	}
	return &item, nil
}

func nullUserID(userID *id.UserID) uuid.NullUUID {
	if userID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*userID), Valid: true}
}
