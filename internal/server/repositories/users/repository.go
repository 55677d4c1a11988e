// Package users defines the user repository contract and its PostgreSQL
// implementation.
package users

import (
	"context"
	"time"

	"github.com/ezidp/ezidp/internal/server/models"
)

// FindCondition selects a single user. Exactly one key is used, with
// precedence ID, Email, ConfirmationToken; an empty condition is a
// validation failure, never a full-table match.
type FindCondition struct {
	ID                string
	Email             string
	ConfirmationToken string
}

// UpdateFields names the user columns a service may change. Zero-valued
// fields are left untouched; an update with nothing set is rejected.
type UpdateFields struct {
	// ClearConfirmationToken sets confirmation_token to NULL, consuming the
	// activation secret.
	ClearConfirmationToken bool
	ConfirmedAt            *time.Time
	EncryptedPassword      *string
	LastSignInAt           *time.Time
}

// Repository persists User records. Implementations must use parameterized
// queries exclusively; conditions and update values are never interpolated
// into SQL text.
type Repository interface {
	// Create inserts the user and returns it with store-assigned timestamps.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// FindOne returns the user matching the condition, or common.ErrNotFound.
	FindOne(ctx context.Context, cond FindCondition) (*models.User, error)

	// FindAll lists every user.
	FindAll(ctx context.Context) ([]*models.User, error)

	// UpdateOne applies the named fields to the user matching the condition.
	UpdateOne(ctx context.Context, cond FindCondition, fields UpdateFields) error

	// DeleteOne removes the user matching the condition.
	DeleteOne(ctx context.Context, cond FindCondition) error
}
