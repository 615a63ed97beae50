package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/techblog-auth/internal/metrics"
	"github.com/iliyamo/techblog-auth/internal/model"
	"github.com/iliyamo/techblog-auth/internal/queue"
	"github.com/iliyamo/techblog-auth/internal/repository"
)

// Logout revokes the presented refresh token by clearing its validity flag.
// The token must decode and match the stored record exactly; expiry is not
// checked.  Revoking an already revoked token succeeds.
func (s *Service) Logout(ctx context.Context, presented string) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Logout")
	defer func() {
		endSpan(span, err)
		s.metrics.Logout(logoutOutcome(err))
	}()

	claims, err := s.codec.Verify(presented)
	if err != nil {
		return s.reject(ctx, rejected(KindDecode, err), model.User{})
	}
	u, err := s.store.FindUserByEmail(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		return s.reject(ctx, rejected(KindUnknownSubject, nil), model.User{Email: claims.Subject})
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if u.Token == nil || u.Token.RefreshToken != presented {
		return s.reject(ctx, rejected(KindMismatch, nil), u)
	}
	if !u.Token.IsValid {
		return nil
	}

	if err := s.store.InvalidateRefreshToken(ctx, u.ID); err != nil {
		return fmt.Errorf("invalidate refresh token: %w", err)
	}
	s.log.Infoj(log.JSON{"msg": "refresh token revoked", "user_id": u.ID, "email": u.Email})
	s.publish(ctx, queue.NewAuthEvent(queue.RefreshTokenRevoked, u.ID, u.Email, s.clock.Now()))
	return nil
}

func logoutOutcome(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	if kind, ok := RefreshKind(err); ok {
		return string(kind)
	}
	return "error"
}
