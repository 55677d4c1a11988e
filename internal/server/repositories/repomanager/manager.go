// Package repomanager vends repository implementations bound to a DBTX, so
// services can run the same repository code against *sql.DB or an open
// transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/ezidp/ezidp/internal/dbx"
	"github.com/ezidp/ezidp/internal/server/repositories/refreshtokens"
	"github.com/ezidp/ezidp/internal/server/repositories/users"
)

// RepositoryManager is the credential store factory the services depend on.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
