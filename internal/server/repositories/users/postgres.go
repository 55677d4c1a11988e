package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ezidp/ezidp/internal/common"
	"github.com/ezidp/ezidp/internal/dbx"
	"github.com/ezidp/ezidp/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, aud, email, role, encrypted_password, raw_user_meta_data,
		confirmation_token, confirmation_sent_at, confirmed_at,
		invited_at, last_sign_in_at, created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// where renders the condition as a parameterized fragment. The value is
// always bound, never spliced into the query text.
func (c FindCondition) where(argPos int) (string, any, error) {
	switch {
	case c.ID != "":
		return fmt.Sprintf("id = $%d", argPos), c.ID, nil
	case c.Email != "":
		return fmt.Sprintf("email = $%d", argPos), c.Email, nil
	case c.ConfirmationToken != "":
		return fmt.Sprintf("confirmation_token = $%d", argPos), c.ConfirmationToken, nil
	default:
		return "", nil, fmt.Errorf("%w: empty user lookup condition", common.ErrValidation)
	}
}

// Create inserts the user and fills in the store-assigned timestamps.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, aud, email, role, encrypted_password, raw_user_meta_data,
			confirmation_token, confirmation_sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Aud, user.Email, user.Role, user.EncryptedPassword,
		user.RawUserMetaData, user.ConfirmationToken, user.ConfirmationSentAt).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: email already registered", common.ErrDuplicate)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// FindOne returns the user matching the condition, or common.ErrNotFound.
func (r *PostgresRepository) FindOne(ctx context.Context, cond FindCondition) (*models.User, error) {
	clause, arg, err := cond.where(1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s`, userColumns, clause)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// FindAll lists every user.
func (r *PostgresRepository) FindAll(ctx context.Context) ([]*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY created_at`, userColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return users, nil
}

// UpdateOne applies the named fields to the matching user. updated_at is
// always touched.
func (r *PostgresRepository) UpdateOne(ctx context.Context, cond FindCondition, fields UpdateFields) error {
	set := []string{"updated_at = now()"}
	args := []any{}

	if fields.ClearConfirmationToken {
		set = append(set, "confirmation_token = NULL")
	}
	if fields.ConfirmedAt != nil {
		args = append(args, *fields.ConfirmedAt)
		set = append(set, fmt.Sprintf("confirmed_at = $%d", len(args)))
	}
	if fields.EncryptedPassword != nil {
		args = append(args, *fields.EncryptedPassword)
		set = append(set, fmt.Sprintf("encrypted_password = $%d", len(args)))
	}
	if fields.LastSignInAt != nil {
		args = append(args, *fields.LastSignInAt)
		set = append(set, fmt.Sprintf("last_sign_in_at = $%d", len(args)))
	}
	if len(set) == 1 {
		return fmt.Errorf("%w: no user fields to update", common.ErrValidation)
	}

	clause, arg, err := cond.where(len(args) + 1)
	if err != nil {
		return err
	}
	args = append(args, arg)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE %s`, strings.Join(set, ", "), clause)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// DeleteOne removes the user matching the condition.
func (r *PostgresRepository) DeleteOne(ctx context.Context, cond FindCondition) error {
	clause, arg, err := cond.where(1)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM users WHERE %s`, clause)
	if _, err := r.db.ExecContext(ctx, query, arg); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Aud, &user.Email, &user.Role, &user.EncryptedPassword,
		&user.RawUserMetaData, &user.ConfirmationToken, &user.ConfirmationSentAt,
		&user.ConfirmedAt, &user.InvitedAt, &user.LastSignInAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}
