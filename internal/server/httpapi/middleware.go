package httpapi

import (
	"net/http"
	"strings"

	"github.com/ezidp/ezidp/internal/server/auth"
	"github.com/labstack/echo/v4"
)

// userIDKey is the echo context key holding the authenticated user id.
const userIDKey = "user_id"

// requireAuth validates the access token from the Authorization header and
// stores the subject user id in the request context. The scheme is matched
// case-insensitively because issued pairs carry token_type "bearer".
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		scheme, value, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "bearer") || value == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
		}

		claims, err := auth.ParseToken(value, s.audience, s.publicKey)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}

		c.Set(userIDKey, claims.UserID)
		return next(c)
	}
}
