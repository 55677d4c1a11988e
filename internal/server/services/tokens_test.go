package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ezidp/ezidp/internal/common"
	"github.com/ezidp/ezidp/internal/server/auth"
)

func TestSignInWithPassword_Success(t *testing.T) {
	env := newTestEnv(t)
	user := env.addConfirmedUser(t, "a@x.com", "s3cret")

	out, err := env.ts.SignInWithPassword(context.Background(), "a@x.com", "s3cret")
	if err != nil {
		t.Fatalf("SignInWithPassword error: %v", err)
	}
	if out.TokenType != "bearer" {
		t.Fatalf("token_type = %q, want bearer", out.TokenType)
	}
	if out.ExpiresIn != 3600 {
		t.Fatalf("expires_in = %d, want 3600", out.ExpiresIn)
	}
	if out.RefreshToken == "" {
		t.Fatalf("refresh token is empty")
	}

	claims, err := auth.ParseToken(out.AccessToken, "api.example.com", &testSigningKey(t).PublicKey)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("claims user_id = %q, want %q", claims.UserID, user.ID)
	}

	// The sign-in moment is recorded on the account.
	stored, err := env.us.FindUser(context.Background(), FindUserInput{ID: user.ID})
	if err != nil {
		t.Fatalf("FindUser error: %v", err)
	}
	if stored.LastSignInAt == nil {
		t.Fatalf("last_sign_in_at not recorded")
	}
}

func TestSignInWithPassword_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.addConfirmedUser(t, "a@x.com", "s3cret")

	_, err := env.ts.SignInWithPassword(context.Background(), "a@x.com", "wrong")
	if !errors.Is(err, common.ErrUnauthenticated) {
		t.Fatalf("want common.ErrUnauthenticated, got %v", err)
	}
}

func TestSignInWithPassword_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ts.SignInWithPassword(context.Background(), "ghost@x.com", "s3cret")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestSignInWithPassword_Unconfirmed(t *testing.T) {
	env := newTestEnv(t)

	user, err := env.us.SignUp(context.Background(), "new@x.com", "s3cret")
	if err != nil {
		t.Fatalf("SignUp error: %v", err)
	}
	if user.IsConfirmed() {
		t.Fatalf("fresh sign-up should not be confirmed")
	}

	// Correct password, but the account has not been confirmed.
	_, err = env.ts.SignInWithPassword(context.Background(), "new@x.com", "s3cret")
	if !errors.Is(err, common.ErrUnauthenticated) {
		t.Fatalf("want common.ErrUnauthenticated, got %v", err)
	}
}

func TestSignInWithRefreshToken_RotatesToken(t *testing.T) {
	env := newTestEnv(t)
	env.addConfirmedUser(t, "a@x.com", "s3cret")

	first, err := env.ts.SignInWithPassword(context.Background(), "a@x.com", "s3cret")
	if err != nil {
		t.Fatalf("SignInWithPassword error: %v", err)
	}

	env.mock.ExpectBegin()
	env.mock.ExpectCommit()

	second, err := env.ts.SignInWithRefreshToken(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("SignInWithRefreshToken error: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}
	if second.AccessToken == "" || second.TokenType != "bearer" {
		t.Fatalf("unexpected output: %+v", second)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestSignInWithRefreshToken_SecondUseFails(t *testing.T) {
	env := newTestEnv(t)
	env.addConfirmedUser(t, "a@x.com", "s3cret")

	first, err := env.ts.SignInWithPassword(context.Background(), "a@x.com", "s3cret")
	if err != nil {
		t.Fatalf("SignInWithPassword error: %v", err)
	}

	env.mock.ExpectBegin()
	env.mock.ExpectCommit()
	if _, err := env.ts.SignInWithRefreshToken(context.Background(), first.RefreshToken); err != nil {
		t.Fatalf("first rotation error: %v", err)
	}

	// The consumed value is still on file but revoked; presenting it again
	// must be rejected before any transaction starts.
	_, err = env.ts.SignInWithRefreshToken(context.Background(), first.RefreshToken)
	if !errors.Is(err, common.ErrUnauthenticated) {
		t.Fatalf("want common.ErrUnauthenticated, got %v", err)
	}
}

func TestSignInWithRefreshToken_UnknownToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ts.SignInWithRefreshToken(context.Background(), "no-such-token")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestSignInWithRefreshToken_ConcurrentLoserRollsBack(t *testing.T) {
	env := newTestEnv(t)
	user := env.addConfirmedUser(t, "a@x.com", "s3cret")

	first, err := env.ts.SignInWithPassword(context.Background(), "a@x.com", "s3cret")
	if err != nil {
		t.Fatalf("SignInWithPassword error: %v", err)
	}

	// Simulate the race: another request consumes the row between the
	// outer revoked check and the in-transaction conditional revoke.
	presented, err := env.tokens.FindByToken(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("FindByToken error: %v", err)
	}

	env.mock.ExpectBegin()
	env.mock.ExpectRollback()

	if err := env.tokens.Revoke(context.Background(), presented.ID); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	_, err = env.ts.rotate(context.Background(), user.ID, first.RefreshToken)
	if !errors.Is(err, common.ErrUnauthenticated) {
		t.Fatalf("want common.ErrUnauthenticated, got %v", err)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestSignInWithRefreshToken_CreateFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.addConfirmedUser(t, "a@x.com", "s3cret")

	first, err := env.ts.SignInWithPassword(context.Background(), "a@x.com", "s3cret")
	if err != nil {
		t.Fatalf("SignInWithPassword error: %v", err)
	}

	env.mock.ExpectBegin()
	env.mock.ExpectRollback()
	env.tokens.createErr = errors.New("disk full")

	_, err = env.ts.SignInWithRefreshToken(context.Background(), first.RefreshToken)
	if !errors.Is(err, common.ErrInternal) {
		t.Fatalf("want common.ErrInternal, got %v", err)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestLogout_InvalidatesRefreshTokens(t *testing.T) {
	env := newTestEnv(t)
	user := env.addConfirmedUser(t, "a@x.com", "s3cret")

	out, err := env.ts.SignInWithPassword(context.Background(), "a@x.com", "s3cret")
	if err != nil {
		t.Fatalf("SignInWithPassword error: %v", err)
	}

	if err := env.ts.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("Logout error: %v", err)
	}

	_, err = env.ts.SignInWithRefreshToken(context.Background(), out.RefreshToken)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound after logout, got %v", err)
	}

	// Logging out again is a no-op.
	if err := env.ts.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("second Logout error: %v", err)
	}
}
