package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ezidp/ezidp/internal/server/models"
	"github.com/ezidp/ezidp/internal/server/services"
	"github.com/labstack/echo/v4"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

type verifyRequest struct {
	ConfirmationToken string  `json:"confirmation_token"`
	Password          *string `json:"password"`
}

// userView is the client-facing projection of a user row. Credential and
// confirmation material never leave the server.
type userView struct {
	ID           string          `json:"id"`
	Aud          string          `json:"aud"`
	Email        string          `json:"email"`
	Role         string          `json:"role"`
	UserMetaData json.RawMessage `json:"user_metadata,omitempty"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
	LastSignInAt *time.Time      `json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func viewOf(u *models.User) userView {
	return userView{
		ID:           u.ID,
		Aud:          u.Aud,
		Email:        u.Email,
		Role:         u.Role,
		UserMetaData: u.RawUserMetaData,
		ConfirmedAt:  u.ConfirmedAt,
		LastSignInAt: u.LastSignInAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// handleSignUp registers a new account. The response is the pending user;
// the confirmation token travels out of band.
func (s *Server) handleSignUp(c echo.Context) error {
	var req signUpRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "email and password are required"})
	}

	user, err := s.users.SignUp(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, viewOf(user))
}

// handleToken is the single sign-in endpoint: grant_type selects between
// password authentication and refresh-token rotation.
func (s *Server) handleToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx := c.Request().Context()
	switch req.GrantType {
	case "password":
		if req.Email == "" || req.Password == "" {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "email and password are required"})
		}
		out, err := s.tokens.SignInWithPassword(ctx, req.Email, req.Password)
		if err != nil {
			s.logger.Info(ctx, "password sign-in rejected", "email", req.Email, "error", err)
			return writeCredentialError(c, "username or password is incorrect", err)
		}
		return c.JSON(http.StatusOK, out)

	case "refresh_token":
		if req.RefreshToken == "" {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "refresh_token is required"})
		}
		out, err := s.tokens.SignInWithRefreshToken(ctx, req.RefreshToken)
		if err != nil {
			s.logger.Info(ctx, "refresh-token exchange rejected", "error", err)
			return writeCredentialError(c, "refresh token has expired", err)
		}
		return c.JSON(http.StatusOK, out)

	default:
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "unsupported grant_type"})
	}
}

// handleVerify confirms the account owning the token and returns its first
// token pair. A body password completes a recovery.
func (s *Server) handleVerify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ConfirmationToken == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "confirmation_token is required"})
	}

	out, err := s.users.Verify(c.Request().Context(), req.ConfirmationToken, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// handleLogout revokes every refresh token of the authenticated user.
func (s *Server) handleLogout(c echo.Context) error {
	userID, _ := c.Get(userIDKey).(string)
	if err := s.tokens.Logout(c.Request().Context(), userID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleGetUser looks a user up by id or email query parameter; with
// neither, it returns the caller's own account.
func (s *Server) handleGetUser(c echo.Context) error {
	input := services.FindUserInput{
		ID:    c.QueryParam("id"),
		Email: c.QueryParam("email"),
	}
	if input.ID == "" && input.Email == "" {
		input.ID, _ = c.Get(userIDKey).(string)
	}

	user, err := s.users.FindUser(c.Request().Context(), input)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(user))
}

// handleListUsers returns every registered user.
func (s *Server) handleListUsers(c echo.Context) error {
	list, err := s.users.ListUsers(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	views := make([]userView, 0, len(list))
	for _, u := range list {
		views = append(views, viewOf(u))
	}
	return c.JSON(http.StatusOK, views)
}
