// Package refreshtokens defines the refresh-token repository contract and
// its PostgreSQL implementation.
//
// Rotation safety depends on Revoke being a conditional write: it succeeds
// only if the row is still active at the moment of the update. Any storage
// backend implementing this interface must provide that guarantee; a
// read-then-write pair with a gap would let two concurrent rotations of the
// same token both succeed.
package refreshtokens

import (
	"context"

	"github.com/ezidp/ezidp/internal/server/models"
)

// Repository persists RefreshToken records.
type Repository interface {
	// Create inserts a fresh active token.
	Create(ctx context.Context, token *models.RefreshToken) error

	// FindByToken returns the row holding the given token value, or
	// common.ErrNotFound.
	FindByToken(ctx context.Context, token string) (*models.RefreshToken, error)

	// FindOne returns the row matching (userID, token), or common.ErrNotFound.
	FindOne(ctx context.Context, userID, token string) (*models.RefreshToken, error)

	// Revoke marks the row revoked. It succeeds only if the row was still
	// active at the moment of the write; a token already consumed yields
	// common.ErrUnauthenticated.
	Revoke(ctx context.Context, id string) error

	// DeleteByUserID removes every token owned by the user. Idempotent.
	DeleteByUserID(ctx context.Context, userID string) error
}
