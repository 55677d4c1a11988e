package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ezidp/ezidp/internal/common"
	"github.com/ezidp/ezidp/internal/logging"
	"github.com/ezidp/ezidp/internal/server/auth"
	"github.com/ezidp/ezidp/internal/server/models"
	"github.com/ezidp/ezidp/internal/server/repositories/repomanager"
	"github.com/ezidp/ezidp/internal/server/repositories/users"
	"github.com/ezidp/ezidp/internal/shared"
	"github.com/google/uuid"
)

// FindUserInput selects one user by id or email, with id taking precedence.
type FindUserInput struct {
	ID    string
	Email string
}

// UserService handles account lifecycle: sign-up with a pending confirmation
// token, confirmation (with optional password recovery), and lookups.
type UserService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	tokens   *TokenService
	audience string
	logger   logging.Logger
}

// NewUserService constructs a UserService. The TokenService is needed
// because confirming an account immediately issues its first session.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, tokens *TokenService, audience string, logger logging.Logger) *UserService {
	return &UserService{
		db:       db,
		repos:    m,
		tokens:   tokens,
		audience: audience,
		logger:   logger.With("module", "user_service"),
	}
}

// SignUp registers a new unconfirmed account. An email owned by a confirmed
// user is rejected with common.ErrDuplicate; an unconfirmed owner is deleted
// first, reclaiming the address. The generated confirmation token is carried
// on the returned user and logged for the notification collaborator — the
// core never sends email itself.
func (s *UserService) SignUp(ctx context.Context, email, password string) (*models.User, error) {
	repo := s.repos.Users(s.db)

	existing, err := repo.FindOne(ctx, users.FindCondition{Email: email})
	switch {
	case err == nil:
		if existing.IsConfirmed() {
			return nil, fmt.Errorf("%w: a user with this email address has already been registered", common.ErrDuplicate)
		}
		// Stale unconfirmed registration; reclaim the address.
		if err := repo.DeleteOne(ctx, users.FindCondition{Email: email}); err != nil {
			return nil, fmt.Errorf("%w: reclaiming email: %v", common.ErrInternal, err)
		}
	case errors.Is(err, common.ErrNotFound):
		// Email is available.
	default:
		return nil, fmt.Errorf("%w: checking email availability: %v", common.ErrInternal, err)
	}

	digest, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	confirmationToken, err := shared.MakeRandHexString(16)
	if err != nil {
		return nil, fmt.Errorf("%w: generating confirmation token: %v", common.ErrInternal, err)
	}

	now := time.Now()
	user := &models.User{
		ID:                 uuid.NewString(),
		Aud:                s.audience,
		Email:              email,
		Role:               models.RoleGeneralUser,
		EncryptedPassword:  digest,
		RawUserMetaData:    json.RawMessage(`{}`),
		ConfirmationToken:  &confirmationToken,
		ConfirmationSentAt: &now,
	}

	created, err := repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: creating user: %v", common.ErrInternal, err)
	}

	s.logger.Info(ctx, "confirmation token issued",
		"user_id", created.ID, "email", created.Email, "confirmation_token", confirmationToken)

	return created, nil
}

// Verify activates the account owning the confirmation token (or completes
// a recovery) and returns its first token pair. The token is single-use by
// construction: the same update that sets confirmed_at clears it, so a
// second presentation finds no match.
func (s *UserService) Verify(ctx context.Context, confirmationToken string, password *string) (*TokenOutput, error) {
	repo := s.repos.Users(s.db)
	cond := users.FindCondition{ConfirmationToken: confirmationToken}

	user, err := repo.FindOne(ctx, cond)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: searching user: %v", common.ErrInternal, err)
	}

	now := time.Now()
	fields := users.UpdateFields{
		ClearConfirmationToken: true,
		ConfirmedAt:            &now,
	}
	if password != nil {
		digest, err := auth.HashPassword(*password)
		if err != nil {
			return nil, err
		}
		fields.EncryptedPassword = &digest
		user.EncryptedPassword = digest
	}

	if err := repo.UpdateOne(ctx, cond, fields); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: confirming user: %v", common.ErrInternal, err)
	}

	user.ConfirmationToken = nil
	user.ConfirmedAt = &now

	return s.tokens.IssueTokens(ctx, user)
}

// FindUser returns a single user by id or email. A lookup with neither set
// is a validation failure.
func (s *UserService) FindUser(ctx context.Context, input FindUserInput) (*models.User, error) {
	cond := users.FindCondition{}
	switch {
	case input.ID != "":
		cond.ID = input.ID
	case input.Email != "":
		cond.Email = input.Email
	default:
		return nil, fmt.Errorf("%w: find user input invalid", common.ErrValidation)
	}

	user, err := s.repos.Users(s.db).FindOne(ctx, cond)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: searching user: %v", common.ErrInternal, err)
	}
	return user, nil
}

// ListUsers returns every registered user.
func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	list, err := s.repos.Users(s.db).FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing users: %v", common.ErrInternal, err)
	}
	return list, nil
}
