// Package server initializes and runs the authentication server: it loads
// configuration and signing keys, connects to Postgres, applies migrations,
// and starts the HTTP endpoint with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ezidp/ezidp/internal/cryptox"
	"github.com/ezidp/ezidp/internal/logging"
	"github.com/ezidp/ezidp/internal/server/config"
	"github.com/ezidp/ezidp/internal/server/httpapi"
	"github.com/ezidp/ezidp/internal/server/repositories/repomanager"
	"github.com/ezidp/ezidp/internal/server/services"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	httpServer *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if cfg.DatabaseDSN == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("database DSN and audience must be configured")
	}

	privateKey, err := cryptox.LoadPrivateKey(cfg.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("key init error: %w", err)
	}
	publicKey, err := cryptox.LoadPublicKey(cfg.PublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("key init error: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	tokenService := services.NewTokenService(db, repos, services.TokenConfig{
		PrivateKey:          privateKey,
		Audience:            cfg.Audience,
		AccessTokenValidity: cfg.AccessTokenValidity,
	}, logger)
	userService := services.NewUserService(db, repos, tokenService, cfg.Audience, logger)

	httpServer := httpapi.NewServer(cfg.EndpointAddr, tokenService, userService, publicKey, cfg.Audience, logger)

	return &App{config: cfg, logger: logger, db: db, httpServer: httpServer}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
}
