package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/techblog-auth/internal/model"
)

// RequireRole returns a middleware function that enforces that the
// authenticated user holds at least one of the specified roles.  It assumes
// JWTAuth ran first.  Otherwise the request is aborted with 403 Forbidden.
func RequireRole(roles ...model.RoleType) echo.MiddlewareFunc {
	allowed := make(map[model.RoleType]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, r := range Roles(c) {
				if allowed[r] {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
	}
}
