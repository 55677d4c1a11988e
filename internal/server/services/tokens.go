// Package services contains the server-side business logic: TokenService
// handles sign-in, refresh-token rotation, and sign-out; UserService handles
// registration and account confirmation.
package services

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ezidp/ezidp/internal/common"
	"github.com/ezidp/ezidp/internal/dbx"
	"github.com/ezidp/ezidp/internal/logging"
	"github.com/ezidp/ezidp/internal/server/auth"
	"github.com/ezidp/ezidp/internal/server/models"
	"github.com/ezidp/ezidp/internal/server/repositories/repomanager"
	"github.com/ezidp/ezidp/internal/server/repositories/users"
	"github.com/ezidp/ezidp/internal/shared"
	"github.com/google/uuid"
)

// TokenOutput is the result of every successful authentication: a signed
// access token plus the refresh token that can mint its successor.
type TokenOutput struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// TokenConfig carries the read-only signing material and policy for token
// issuance. It is built once at startup and safe for concurrent readers.
type TokenConfig struct {
	PrivateKey          *rsa.PrivateKey
	Audience            string
	AccessTokenValidity time.Duration
}

// TokenService implements the credential use cases:
//   - SignInWithPassword: verify credentials and mint a token pair
//   - SignInWithRefreshToken: rotate a refresh token and mint a new pair
//   - Logout: revoke every refresh token of a user
type TokenService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	cfg    TokenConfig
	logger logging.Logger
}

// NewTokenService constructs a TokenService from repositories and signing
// configuration.
func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, cfg TokenConfig, logger logging.Logger) *TokenService {
	return &TokenService{
		db:     db,
		repos:  m,
		cfg:    cfg,
		logger: logger.With("module", "token_service"),
	}
}

// SignInWithPassword authenticates by email and password and returns a fresh
// token pair. An unknown email surfaces as common.ErrNotFound and a wrong
// password or unconfirmed account as common.ErrUnauthenticated; the
// transport collapses those into one generic message.
func (s *TokenService) SignInWithPassword(ctx context.Context, email, password string) (*TokenOutput, error) {
	repo := s.repos.Users(s.db)

	user, err := repo.FindOne(ctx, users.FindCondition{Email: email})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: searching user: %v", common.ErrInternal, err)
	}

	if !auth.VerifyPassword(user.EncryptedPassword, password) {
		return nil, fmt.Errorf("%w: username or password is incorrect", common.ErrUnauthenticated)
	}
	if !user.IsConfirmed() {
		return nil, fmt.Errorf("%w: your account is not confirmed yet", common.ErrUnauthenticated)
	}

	now := time.Now()
	if err := repo.UpdateOne(ctx, users.FindCondition{ID: user.ID}, users.UpdateFields{LastSignInAt: &now}); err != nil {
		// Sign-in still succeeds; the timestamp is best-effort bookkeeping.
		s.logger.Warn(ctx, "failed to record last sign-in", "user_id", user.ID, "error", err)
	}

	return s.IssueTokens(ctx, user)
}

// SignInWithRefreshToken exchanges a refresh token for a new token pair,
// revoking the presented token in the same transaction. A token that was
// already consumed fails with common.ErrUnauthenticated; exactly one of two
// concurrent exchanges of the same value can win.
func (s *TokenService) SignInWithRefreshToken(ctx context.Context, refreshToken string) (*TokenOutput, error) {
	presented, err := s.repos.RefreshTokens(s.db).FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: searching refresh token: %v", common.ErrInternal, err)
	}
	if presented.Revoked {
		return nil, fmt.Errorf("%w: refresh token has expired", common.ErrUnauthenticated)
	}

	user, err := s.repos.Users(s.db).FindOne(ctx, users.FindCondition{ID: presented.UserID})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: searching user: %v", common.ErrInternal, err)
	}

	successor, err := s.rotate(ctx, user.ID, presented.Token)
	if err != nil {
		return nil, err
	}
	return s.buildOutput(user, successor.Token)
}

// Logout deletes every refresh token owned by the user. Calling it again is
// a no-op.
func (s *TokenService) Logout(ctx context.Context, userID string) error {
	if err := s.repos.RefreshTokens(s.db).DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("%w: deleting refresh tokens: %v", common.ErrInternal, err)
	}
	return nil
}

// IssueTokens mints a token pair for a user with no predecessor refresh
// token (initial sign-in, or the session issued right after confirmation).
func (s *TokenService) IssueTokens(ctx context.Context, user *models.User) (*TokenOutput, error) {
	refresh, err := s.newRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.RefreshTokens(s.db).Create(ctx, refresh); err != nil {
		return nil, fmt.Errorf("%w: storing refresh token: %v", common.ErrInternal, err)
	}
	return s.buildOutput(user, refresh.Token)
}

// rotate atomically replaces the presented refresh token with a successor.
// The conditional revoke and the insert run in one transaction: if the
// insert fails the revoke is rolled back, and of two concurrent rotations
// only the first conditional revoke matches a row.
func (s *TokenService) rotate(ctx context.Context, userID, presentedToken string) (*models.RefreshToken, error) {
	successor, err := s.newRefreshToken(userID)
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.RefreshTokens(tx)

		old, err := repo.FindOne(ctx, userID, presentedToken)
		if err != nil {
			return err
		}
		if old.Revoked {
			return fmt.Errorf("%w: refresh token has expired", common.ErrUnauthenticated)
		}
		if err := repo.Revoke(ctx, old.ID); err != nil {
			return err
		}
		return repo.Create(ctx, successor)
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrUnauthenticated):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: rotating refresh token: %v", common.ErrInternal, err)
		}
	}
	return successor, nil
}

func (s *TokenService) newRefreshToken(userID string) (*models.RefreshToken, error) {
	value, err := shared.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("%w: generating refresh token: %v", common.ErrInternal, err)
	}
	return &models.RefreshToken{
		ID:     uuid.NewString(),
		Token:  value,
		UserID: userID,
	}, nil
}

func (s *TokenService) buildOutput(user *models.User, refreshToken string) (*TokenOutput, error) {
	access, err := auth.GenerateToken(user.ID, s.cfg.Audience, s.cfg.PrivateKey, s.cfg.AccessTokenValidity)
	if err != nil {
		return nil, err
	}
	return &TokenOutput{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int(s.cfg.AccessTokenValidity.Seconds()),
		RefreshToken: refreshToken,
	}, nil
}
