package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/techblog-auth/internal/metrics"
	"github.com/iliyamo/techblog-auth/internal/model"
	"github.com/iliyamo/techblog-auth/internal/queue"
	"github.com/iliyamo/techblog-auth/internal/repository"
)

// Session is the result of a successful login.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             model.User
}

// Authenticate checks email and password, then mints an access token and a
// fresh refresh token.  The refresh token replaces whatever record the user
// had before.  Unknown email and wrong password fail the same way.
func (s *Service) Authenticate(ctx context.Context, req LoginRequest) (sess Session, err error) {
	email := NormalizeEmail(req.Email)
	ctx, span := s.startSpan(ctx, "auth.Authenticate", email)
	defer func() {
		endSpan(span, err)
		s.metrics.Authentication(authenticationOutcome(err))
	}()

	u, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warnj(log.JSON{"msg": "login rejected", "email": email, "reason": "unknown_email"})
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("find user: %w", err)
	}
	ok, err := s.hasher.Verify(u.PasswordHash, req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.log.Warnj(log.JSON{"msg": "login rejected", "email": email, "reason": "bad_password"})
		return Session{}, ErrInvalidCredentials
	}

	now := s.clock.Now()
	access, err := s.codec.Issue(u.Email, now, s.accessTTL, strings.Join(u.RoleNames(), ","))
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.Issue(u.Email, now, s.refreshTTL, "")
	if err != nil {
		return Session{}, fmt.Errorf("issue refresh token: %w", err)
	}
	// The stored expiry is read back from the signed token so it always
	// matches what a later refresh will decode.
	claims, err := s.codec.Verify(refresh.Value)
	if err != nil {
		s.log.Errorj(log.JSON{"msg": "fresh refresh token failed to decode", "email": email, "error": err.Error()})
		return Session{}, fmt.Errorf("%w: %w", ErrRefreshTokenIssue, err)
	}

	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	u.Token = &model.Token{
		UserID:       u.ID,
		RefreshToken: refresh.Value,
		ExpireTime:   claims.ExpiresAt.Time,
		IsValid:      true,
	}
	u, err = s.store.SaveUser(ctx, u)
	if err != nil {
		return Session{}, fmt.Errorf("save refresh token: %w", err)
	}

	s.log.Infoj(log.JSON{"msg": "user authenticated", "user_id": u.ID, "email": u.Email})
	s.publish(ctx, queue.NewAuthEvent(queue.UserAuthenticated, u.ID, u.Email, now))
	return Session{
		AccessToken:      access.Value,
		AccessExpiresAt:  access.ExpiresAt(),
		RefreshToken:     refresh.Value,
		RefreshExpiresAt: claims.ExpiresAt.Time,
		User:             u,
	}, nil
}

func authenticationOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrRefreshTokenIssue):
		return "token_issue"
	}
	return "error"
}
