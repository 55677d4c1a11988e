// Package httpapi exposes the authentication services over HTTP using echo.
package httpapi

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"time"

	"github.com/ezidp/ezidp/internal/logging"
	"github.com/ezidp/ezidp/internal/server/models"
	"github.com/ezidp/ezidp/internal/server/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// tokenService is the slice of TokenService the transport needs.
type tokenService interface {
	SignInWithPassword(ctx context.Context, email, password string) (*services.TokenOutput, error)
	SignInWithRefreshToken(ctx context.Context, refreshToken string) (*services.TokenOutput, error)
	Logout(ctx context.Context, userID string) error
}

// userService is the slice of UserService the transport needs.
type userService interface {
	SignUp(ctx context.Context, email, password string) (*models.User, error)
	Verify(ctx context.Context, confirmationToken string, password *string) (*services.TokenOutput, error)
	FindUser(ctx context.Context, input services.FindUserInput) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
}

type Server struct {
	address   string
	tokens    tokenService
	users     userService
	publicKey *rsa.PublicKey
	audience  string
	logger    logging.Logger
}

func NewServer(address string, ts tokenService, us userService, publicKey *rsa.PublicKey, audience string, logger logging.Logger) *Server {
	return &Server{
		address:   address,
		tokens:    ts,
		users:     us,
		publicKey: publicKey,
		audience:  audience,
		logger:    logger.With("module", "http_server"),
	}
}

// routes registers every endpoint on the echo instance.
func (s *Server) routes(e *echo.Echo) {
	e.POST("/auth/signup", s.handleSignUp)
	e.POST("/auth/token", s.handleToken)
	e.POST("/auth/verify", s.handleVerify)

	protected := e.Group("/auth", s.requireAuth)
	protected.POST("/logout", s.handleLogout)
	protected.GET("/user", s.handleGetUser)
	protected.GET("/users", s.handleListUsers)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then drains in-flight requests before returning.
func (s *Server) Run(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s.routes(e)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := e.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
