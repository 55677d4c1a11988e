package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ezidp/ezidp/internal/common"
	"github.com/ezidp/ezidp/internal/dbx"
	"github.com/ezidp/ezidp/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a fresh active token.
func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, token, user_id, revoked)
		VALUES ($1, $2, $3, FALSE)
	`
	if _, err := r.db.ExecContext(ctx, query, token.ID, token.Token, token.UserID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByToken returns the row holding the given token value.
func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `
		SELECT id, token, user_id, revoked, created_at, updated_at
		FROM refresh_tokens
		WHERE token = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

// FindOne returns the row matching (userID, token).
func (r *PostgresRepository) FindOne(ctx context.Context, userID, token string) (*models.RefreshToken, error) {
	query := `
		SELECT id, token, user_id, revoked, created_at, updated_at
		FROM refresh_tokens
		WHERE user_id = $1 AND token = $2
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, token))
}

// Revoke conditionally marks the token consumed. Zero rows affected means
// the row was already revoked by a concurrent rotation (or never active),
// so the presented token must not authorize a new session.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, updated_at = now()
		WHERE id = $1 AND revoked = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: refresh token has expired", common.ErrUnauthenticated)
	}
	return nil
}

// DeleteByUserID removes every token owned by the user.
func (r *PostgresRepository) DeleteByUserID(ctx context.Context, userID string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE user_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.RefreshToken, error) {
	token := &models.RefreshToken{}
	err := row.Scan(&token.ID, &token.Token, &token.UserID, &token.Revoked,
		&token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}
