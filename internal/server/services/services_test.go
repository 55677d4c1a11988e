package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"sync"
	"testing"
	"time"

	"fmt"
	"io"
	"log/slog"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ezidp/ezidp/internal/common"
	"github.com/ezidp/ezidp/internal/dbx"
	"github.com/ezidp/ezidp/internal/logging"
	"github.com/ezidp/ezidp/internal/server/auth"
	"github.com/ezidp/ezidp/internal/server/models"
	refreshtokensrepo "github.com/ezidp/ezidp/internal/server/repositories/refreshtokens"
	usersrepo "github.com/ezidp/ezidp/internal/server/repositories/users"
	"github.com/google/uuid"
)

// --- shared test fixtures ---

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("rsa.GenerateKey error: %v", err)
		}
	})
	return testKey
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// memUsersRepo is an in-memory users.Repository with the semantics of the
// Postgres implementation: condition precedence, unique email, NotFound.
type memUsersRepo struct {
	mu   sync.Mutex
	rows map[string]*models.User // keyed by id
}

func newMemUsersRepo() *memUsersRepo {
	return &memUsersRepo{rows: map[string]*models.User{}}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	return &c
}

func (m *memUsersRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Email == user.Email && row.Aud == user.Aud {
			return nil, fmt.Errorf("%w: email already registered", common.ErrDuplicate)
		}
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	m.rows[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (m *memUsersRepo) match(cond usersrepo.FindCondition) (*models.User, error) {
	switch {
	case cond.ID != "":
		if row, ok := m.rows[cond.ID]; ok {
			return row, nil
		}
	case cond.Email != "":
		for _, row := range m.rows {
			if row.Email == cond.Email {
				return row, nil
			}
		}
	case cond.ConfirmationToken != "":
		for _, row := range m.rows {
			if row.ConfirmationToken != nil && *row.ConfirmationToken == cond.ConfirmationToken {
				return row, nil
			}
		}
	default:
		return nil, fmt.Errorf("%w: empty user lookup condition", common.ErrValidation)
	}
	return nil, common.ErrNotFound
}

func (m *memUsersRepo) FindOne(ctx context.Context, cond usersrepo.FindCondition) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.match(cond)
	if err != nil {
		return nil, err
	}
	return cloneUser(row), nil
}

func (m *memUsersRepo) FindAll(ctx context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.User
	for _, row := range m.rows {
		out = append(out, cloneUser(row))
	}
	return out, nil
}

func (m *memUsersRepo) UpdateOne(ctx context.Context, cond usersrepo.FindCondition, fields usersrepo.UpdateFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.match(cond)
	if err != nil {
		return err
	}
	if fields.ClearConfirmationToken {
		row.ConfirmationToken = nil
	}
	if fields.ConfirmedAt != nil {
		row.ConfirmedAt = fields.ConfirmedAt
	}
	if fields.EncryptedPassword != nil {
		row.EncryptedPassword = *fields.EncryptedPassword
	}
	if fields.LastSignInAt != nil {
		row.LastSignInAt = fields.LastSignInAt
	}
	row.UpdatedAt = time.Now()
	return nil
}

func (m *memUsersRepo) DeleteOne(ctx context.Context, cond usersrepo.FindCondition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.match(cond)
	if err != nil {
		return err
	}
	delete(m.rows, row.ID)
	return nil
}

// memRefreshRepo is an in-memory refreshtokens.Repository; Revoke keeps the
// Postgres contract that an already-consumed row fails Unauthenticated.
type memRefreshRepo struct {
	mu   sync.Mutex
	rows map[string]*models.RefreshToken // keyed by id

	createErr error
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{rows: map[string]*models.RefreshToken{}}
}

func (m *memRefreshRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	token.CreatedAt, token.UpdatedAt = now, now
	c := *token
	m.rows[token.ID] = &c
	return nil
}

func (m *memRefreshRepo) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Token == token {
			c := *row
			return &c, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memRefreshRepo) FindOne(ctx context.Context, userID, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID == userID && row.Token == token {
			c := *row
			return &c, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memRefreshRepo) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Revoked {
		return fmt.Errorf("%w: refresh token has expired", common.ErrUnauthenticated)
	}
	row.Revoked = true
	return nil
}

func (m *memRefreshRepo) DeleteByUserID(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.rows {
		if row.UserID == userID {
			delete(m.rows, id)
		}
	}
	return nil
}

type fakeRepoManager struct {
	u *memUsersRepo
	r *memRefreshRepo
}

func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository {
	return m.r
}
func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }

type testEnv struct {
	db     *sql.DB
	mock   sqlmock.Sqlmock
	users  *memUsersRepo
	tokens *memRefreshRepo
	ts     *TokenService
	us     *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock := newSQLMockDB(t)
	rm := &fakeRepoManager{u: newMemUsersRepo(), r: newMemRefreshRepo()}
	cfg := TokenConfig{
		PrivateKey:          testSigningKey(t),
		Audience:            "api.example.com",
		AccessTokenValidity: time.Hour,
	}
	ts := NewTokenService(db, rm, cfg, testLogger())
	us := NewUserService(db, rm, ts, "api.example.com", testLogger())
	return &testEnv{db: db, mock: mock, users: rm.u, tokens: rm.r, ts: ts, us: us}
}

// addConfirmedUser seeds a confirmed account and returns it.
func (e *testEnv) addConfirmedUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	digest, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	now := time.Now()
	u := &models.User{
		ID:                uuid.NewString(),
		Aud:               "api.example.com",
		Email:             email,
		Role:              models.RoleGeneralUser,
		EncryptedPassword: digest,
		ConfirmedAt:       &now,
	}
	if _, err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user error: %v", err)
	}
	return u
}
