package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/techblog-auth/internal/handler"
	"github.com/iliyamo/techblog-auth/internal/metrics"
	"github.com/iliyamo/techblog-auth/internal/middleware"
	"github.com/iliyamo/techblog-auth/internal/model"
)

// RegisterRoutes registers routes that do not require authentication: the
// health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db *sql.DB, m *metrics.Metrics) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}

// RegisterAuth registers all authentication routes under /auth.  limiter
// guards every one of them; /auth/me additionally needs a live access token
// holding USER or ADMIN.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, verifier middleware.AccessVerifier, now func() time.Time, limiter echo.MiddlewareFunc) {
	g := e.Group("/auth", limiter)

	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// The refresh cookie is scoped to this path, so refresh and logout share it.
	g.POST("/refresh", a.Refresh)
	g.DELETE("/refresh", a.Logout)

	g.GET("/me", a.Me,
		middleware.JWTAuth(verifier, now),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
}
