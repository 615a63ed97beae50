package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/techblog-auth/internal/auth"
)

// errMissingRefreshToken is returned when the refresh cookie is absent.
var errMissingRefreshToken = errors.New("refresh token is missing")

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Errors  []auth.FieldError `json:"errors,omitempty"`
	Trace   string            `json:"trace,omitempty"`
}

// NewErrorHandler maps handler errors to ErrorResponse bodies.  Refresh
// failures all look the same to the client; the rejection kind only reaches
// the logs.  With trace enabled, a request carrying ?trace=true also gets
// the full error chain.
func NewErrorHandler(trace bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		body := classify(err)
		if trace && c.QueryParam("trace") == "true" {
			body.Trace = errorChain(err)
		}
		if body.Status >= http.StatusInternalServerError {
			c.Logger().Errorj(log.JSON{
				"msg":    "request failed",
				"method": c.Request().Method,
				"path":   c.Path(),
				"error":  errorChain(err),
			})
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(body.Status)
		} else {
			werr = c.JSON(body.Status, body)
		}
		if werr != nil {
			c.Logger().Error(werr)
		}
	}
}

func classify(err error) ErrorResponse {
	var ve *auth.ValidationError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ve):
		return ErrorResponse{Status: http.StatusBadRequest, Message: "Validation failed", Errors: ve.Fields}
	case errors.Is(err, auth.ErrPasswordMismatch):
		return ErrorResponse{Status: http.StatusBadRequest, Message: "Passwords do not match"}
	case errors.Is(err, errMissingRefreshToken):
		return ErrorResponse{Status: http.StatusBadRequest, Message: "Refresh token is missing"}
	case errors.Is(err, auth.ErrUserExists):
		return ErrorResponse{Status: http.StatusConflict, Message: "User already exists"}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return ErrorResponse{Status: http.StatusUnauthorized, Message: "Invalid email or password"}
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		return ErrorResponse{Status: http.StatusUnauthorized, Message: "Invalid refresh token"}
	case errors.Is(err, auth.ErrUserNotFound):
		return ErrorResponse{Status: http.StatusNotFound, Message: "User not found"}
	case errors.Is(err, auth.ErrRoleAssignment):
		return ErrorResponse{Status: http.StatusInternalServerError, Message: "Role assignment failed"}
	case errors.As(err, &he):
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return ErrorResponse{Status: he.Code, Message: msg}
	}
	return ErrorResponse{Status: http.StatusInternalServerError, Message: "Unknown error occurred"}
}

func errorChain(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Internal != nil {
		return fmt.Sprintf("%v: %v", he.Message, he.Internal)
	}
	return err.Error()
}
