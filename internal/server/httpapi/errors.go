package httpapi

import (
	"errors"
	"net/http"

	"github.com/ezidp/ezidp/internal/common"
	"github.com/labstack/echo/v4"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, common.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders the error as a JSON body. Internal details never reach
// the client: a 500 gets a fixed message.
func writeError(c echo.Context, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	return c.JSON(status, echo.Map{"error": msg})
}

// writeCredentialError is writeError for the token endpoint: NotFound and
// Unauthenticated collapse into one fixed 401 body so callers cannot probe
// which emails or token values exist. The precise cause is logged upstream.
func writeCredentialError(c echo.Context, msg string, err error) error {
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrUnauthenticated) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
	}
	return writeError(c, err)
}
