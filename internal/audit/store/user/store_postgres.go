package user

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

// Postgres reads internal accounts from the users table maintained by the
// identity system; this service never writes to it.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a postgres-backed user directory.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	querier := interface {
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	}(s.db)
	if tx, ok := txcontext.From(ctx); ok {
		querier = tx
	}

	query := `SELECT id, name, email FROM users WHERE id = $1`
	var (
		user   models.User
		rawID  uuid.UUID
	)
	err := querier.QueryRowContext(ctx, query, uuid.UUID(userID)).Scan(&rawID, &user.Name, &user.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	user.ID = id.UserID(rawID)
	return &user, nil
}
