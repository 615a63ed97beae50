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

// AccessGrant is a freshly minted access token.
type AccessGrant struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Refresh exchanges a refresh token for a new access token.  The presented
// token must decode, name a known user and match that user's stored record,
// which must be valid and unexpired.  The stored record is only read; the
// refresh token itself is never rotated here.
func (s *Service) Refresh(ctx context.Context, presented string) (grant AccessGrant, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Refresh")
	defer func() {
		endSpan(span, err)
		s.metrics.Refresh(refreshOutcome(err))
	}()

	now := s.clock.Now()
	u, err := s.checkRefreshToken(ctx, presented, now)
	if err != nil {
		return AccessGrant{}, err
	}

	access, err := s.codec.Issue(u.Email, now, s.accessTTL, strings.Join(u.RoleNames(), ","))
	if err != nil {
		return AccessGrant{}, fmt.Errorf("issue access token: %w", err)
	}
	return AccessGrant{AccessToken: access.Value, ExpiresAt: access.ExpiresAt()}, nil
}

// checkRefreshToken runs the decode, subject and record checks shared by
// Refresh and Logout.  The record checks run in a fixed order: validity flag,
// exact value match, then expiry against now.
func (s *Service) checkRefreshToken(ctx context.Context, presented string, now time.Time) (model.User, error) {
	claims, err := s.codec.Verify(presented)
	if err != nil {
		return model.User{}, s.reject(ctx, rejected(KindDecode, err), model.User{})
	}

	u, err := s.store.FindUserByEmail(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, s.reject(ctx, rejected(KindUnknownSubject, nil), model.User{Email: claims.Subject})
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user: %w", err)
	}

	tok := u.Token
	switch {
	case tok == nil:
		return model.User{}, s.reject(ctx, rejected(KindMismatch, errors.New("no refresh token on record")), u)
	case !tok.IsValid:
		return model.User{}, s.reject(ctx, rejected(KindInvalidated, nil), u)
	case tok.RefreshToken != presented:
		return model.User{}, s.reject(ctx, rejected(KindMismatch, nil), u)
	case !now.Before(tok.ExpireTime):
		return model.User{}, s.reject(ctx, rejected(KindExpired, nil), u)
	}
	return u, nil
}

func (s *Service) reject(ctx context.Context, err error, u model.User) error {
	kind, _ := RefreshKind(err)
	s.log.Warnj(log.JSON{"msg": "refresh token rejected", "email": u.Email, "kind": kind})
	if u.Email != "" {
		ev := queue.NewAuthEvent(queue.RefreshTokenRejected, u.ID, u.Email, s.clock.Now())
		ev.Reason = string(kind)
		s.publish(ctx, ev)
	}
	return err
}

func refreshOutcome(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	if kind, ok := RefreshKind(err); ok {
		return string(kind)
	}
	return "error"
}
