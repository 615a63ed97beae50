package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/techblog-auth/internal/auth"
	"github.com/iliyamo/techblog-auth/internal/config"
	"github.com/iliyamo/techblog-auth/internal/middleware"
	"github.com/iliyamo/techblog-auth/internal/model"
)

const requestTimeout = 5 * time.Second

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Svc    *auth.Service
	Cookie config.CookieConfig
}

func NewAuthHandler(svc *auth.Service, cookie config.CookieConfig) *AuthHandler {
	return &AuthHandler{Svc: svc, Cookie: cookie}
}

// ----- DTOs -----

type userResp struct {
	FirstName  string   `json:"firstName"`
	LastName   string   `json:"lastName"`
	Email      string   `json:"email"`
	ProfileImg *string  `json:"profileImg"`
	Roles      []string `json:"roles"`
}

type loginResp struct {
	userResp
	AccessToken string `json:"accessToken"`
}

type accessResp struct {
	AccessToken string `json:"accessToken"`
}

func toUserResp(u model.User) userResp {
	return userResp{
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		ProfileImg: u.ProfileImg,
		Roles:      u.RoleNames(),
	}
}

// Register: create a user with the default role.  201 with an empty body.
func (h *AuthHandler) Register(c echo.Context) error {
	var req auth.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if _, err := h.Svc.Register(ctx, req); err != nil {
		return err
	}
	return c.NoContent(http.StatusCreated)
}

// Login: verify credentials, return the access token in the body and the
// refresh token as an HttpOnly cookie scoped to the refresh endpoint.
func (h *AuthHandler) Login(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Svc.Authenticate(ctx, req)
	if err != nil {
		return err
	}
	c.SetCookie(h.refreshCookie(sess.RefreshToken, int(h.Svc.RefreshTTL()/time.Second)))
	return c.JSON(http.StatusOK, loginResp{
		userResp:    toUserResp(sess.User),
		AccessToken: sess.AccessToken,
	})
}

// Refresh: exchange the refresh cookie for a new access token.  The refresh
// token itself is left untouched.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw, err := h.presentedRefreshToken(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	grant, err := h.Svc.Refresh(ctx, raw)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, accessResp{AccessToken: grant.AccessToken})
}

// Logout: revoke the refresh token carried by the cookie and clear it.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw, err := h.presentedRefreshToken(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Svc.Logout(ctx, raw); err != nil {
		return err
	}
	c.SetCookie(h.refreshCookie("", -1))
	return c.NoContent(http.StatusNoContent)
}

// Me: profile of the caller identified by the bearer access token.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Svc.Profile(ctx, middleware.Subject(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

func (h *AuthHandler) presentedRefreshToken(c echo.Context) (string, error) {
	ck, err := c.Cookie(h.Cookie.Name)
	if err != nil || strings.TrimSpace(ck.Value) == "" {
		return "", errMissingRefreshToken
	}
	return ck.Value, nil
}

func (h *AuthHandler) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    value,
		Path:     h.Cookie.Path,
		Domain:   h.Cookie.Domain,
		MaxAge:   maxAge,
		Secure:   h.Cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
