package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/techblog-auth/internal/config"
	"github.com/iliyamo/techblog-auth/internal/metrics"
	"github.com/iliyamo/techblog-auth/internal/model"
	"github.com/iliyamo/techblog-auth/internal/token"
)

var issuedAt = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newCodec(t *testing.T) *token.Codec {
	t.Helper()
	c, err := token.NewCodec("mw-secret", "self")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// serve runs mw in front of a handler that echoes the caller identity.
func serve(t *testing.T, mw []echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := func(c echo.Context) error {
		return c.String(http.StatusOK, Subject(c))
	}
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return rec, h(c)
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func bearer(raw string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+raw)
	return req
}

func TestJWTAuthAcceptsLiveAccessToken(t *testing.T) {
	codec := newCodec(t)
	access, _ := codec.Issue("john@x.com", issuedAt, 10*time.Second, "USER")
	now := func() time.Time { return issuedAt.Add(5 * time.Second) }

	rec, err := serve(t, []echo.MiddlewareFunc{JWTAuth(codec, now), RequireRole(model.RoleUser, model.RoleAdmin)}, bearer(access.Value))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "john@x.com" {
		t.Fatalf("subject = %q", rec.Body.String())
	}
}

func TestJWTAuthRejections(t *testing.T) {
	codec := newCodec(t)
	access, _ := codec.Issue("john@x.com", issuedAt, 10*time.Second, "USER")
	refresh, _ := codec.Issue("john@x.com", issuedAt, time.Hour, "")
	now := func() time.Time { return issuedAt.Add(10 * time.Second) }
	early := func() time.Time { return issuedAt }

	cases := []struct {
		name string
		req  *http.Request
		now  func() time.Time
	}{
		{"no header", httptest.NewRequest(http.MethodGet, "/auth/me", nil), early},
		{"garbage", bearer("garbage"), early},
		{"expired at boundary", bearer(access.Value), now},
		{"refresh token", bearer(refresh.Value), early},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := serve(t, []echo.MiddlewareFunc{JWTAuth(codec, tc.now)}, tc.req)
			if got := statusOf(t, err); got != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", got)
			}
		})
	}
}

func TestRequireRoleForbidden(t *testing.T) {
	codec := newCodec(t)
	access, _ := codec.Issue("john@x.com", issuedAt, time.Minute, "USER")
	now := func() time.Time { return issuedAt }

	_, err := serve(t, []echo.MiddlewareFunc{JWTAuth(codec, now), RequireRole(model.RoleAdmin)}, bearer(access.Value))
	if got := statusOf(t, err); got != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", got)
	}
}

func TestParseRolesSkipsUnknown(t *testing.T) {
	got := parseRoles("USER, admin,ROOT,")
	if len(got) != 2 || got[0] != model.RoleUser || got[1] != model.RoleAdmin {
		t.Fatalf("parseRoles = %v", got)
	}
}

func newLimiter(t *testing.T, capacity int) (echo.MiddlewareFunc, *miniredis.Miniredis, *metrics.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	m := metrics.New()
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       capacity,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl:test",
	}
	return NewTokenBucket(cfg, rdb, m), mr, m
}

func loginRequest() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	return req
}

func TestTokenBucketBlocksAfterCapacity(t *testing.T) {
	mw, mr, _ := newLimiter(t, 2)

	for i := 0; i < 2; i++ {
		rec, err := serve(t, []echo.MiddlewareFunc{mw}, loginRequest())
		if err != nil {
			t.Fatalf("request %d blocked: %v", i, err)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != []string{"1", "0"}[i] {
			t.Fatalf("remaining = %q on request %d", got, i)
		}
	}

	rec, err := serve(t, []echo.MiddlewareFunc{mw}, loginRequest())
	if got := statusOf(t, err); got != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", got)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	if !mr.Exists("rl:test:ip:10.0.0.1") {
		t.Fatalf("bucket key not found, keys = %v", mr.Keys())
	}
}

func TestTokenBucketPassesThroughWhenRedisDown(t *testing.T) {
	mw, mr, _ := newLimiter(t, 1)
	mr.Close()

	for i := 0; i < 3; i++ {
		if _, err := serve(t, []echo.MiddlewareFunc{mw}, loginRequest()); err != nil {
			t.Fatalf("request %d failed with redis down: %v", i, err)
		}
	}
}

func TestTokenBucketDisabled(t *testing.T) {
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, nil)
	if _, err := serve(t, []echo.MiddlewareFunc{mw}, loginRequest()); err != nil {
		t.Fatalf("disabled limiter blocked: %v", err)
	}
}
