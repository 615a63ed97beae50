package middleware

// identity.go holds the context keys the JWT middleware fills in and the
// helpers handlers use to read them back.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/techblog-auth/internal/model"
)

const (
	ctxSubject = "auth.subject"
	ctxRoles   = "auth.roles"
)

// Subject returns the email of the authenticated caller, or "" for anonymous
// requests.
func Subject(c echo.Context) string {
	if v, ok := c.Get(ctxSubject).(string); ok {
		return v
	}
	return ""
}

// Roles returns the roles carried by the caller's access token.
func Roles(c echo.Context) []model.RoleType {
	if v, ok := c.Get(ctxRoles).([]model.RoleType); ok {
		return v
	}
	return nil
}

// userID extracts a rate-limit identity from the context. It returns "anon"
// when no user is authenticated.
func userID(c echo.Context) string {
	if s := Subject(c); s != "" {
		return s
	}
	return "anon"
}
