package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/techblog-auth/internal/model"
	"github.com/iliyamo/techblog-auth/internal/token"
)

// AccessVerifier decodes access tokens.  *token.Codec satisfies it.
type AccessVerifier interface {
	Verify(raw string) (token.Claims, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores its subject and roles in the request context.  The codec does not
// look at expiry, so it is checked here against now.  Tokens without a roles
// claim are refresh tokens and are refused.
func JWTAuth(v AccessVerifier, now func() time.Time) echo.MiddlewareFunc {
	if now == nil {
		now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			claims, err := v.Verify(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token").SetInternal(err)
			}
			if token.Expired(claims, now()) {
				return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
			}
			roles := parseRoles(claims.Roles)
			if len(roles) == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(ctxSubject, claims.Subject)
			c.Set(ctxRoles, roles)
			return next(c)
		}
	}
}

func parseRoles(s string) []model.RoleType {
	var roles []model.RoleType
	for _, part := range strings.Split(s, ",") {
		if r, ok := model.ParseRoleType(part); ok {
			roles = append(roles, r)
		}
	}
	return roles
}
