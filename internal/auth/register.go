package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/techblog-auth/internal/metrics"
	"github.com/iliyamo/techblog-auth/internal/model"
	"github.com/iliyamo/techblog-auth/internal/queue"
	"github.com/iliyamo/techblog-auth/internal/repository"
)

// Register creates a user holding the default USER role.  The checks run in
// a fixed order: password agreement, email uniqueness, role lookup, hashing
// and finally the insert.  Nothing is written unless every check passes.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (u model.User, err error) {
	email := NormalizeEmail(req.Email)
	ctx, span := s.startSpan(ctx, "auth.Register", email)
	defer func() {
		endSpan(span, err)
		s.metrics.Registration(registrationOutcome(err))
	}()

	if req.Password != req.VerifyPassword {
		return model.User{}, ErrPasswordMismatch
	}

	exists, err := s.store.ExistsByEmail(ctx, email)
	if err != nil {
		return model.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return model.User{}, ErrUserExists
	}

	role, err := s.store.FindRoleByAuthority(ctx, model.RoleUser)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Errorj(log.JSON{"msg": "default role missing", "role": model.RoleUser})
		return model.User{}, fmt.Errorf("%w: %s", ErrRoleAssignment, model.RoleUser)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find role: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err = s.store.SaveUser(ctx, model.User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        email,
		PasswordHash: hash,
		Roles:        []model.Role{role},
	})
	if errors.Is(err, repository.ErrEmailExists) {
		return model.User{}, ErrUserExists
	}
	if err != nil {
		return model.User{}, fmt.Errorf("save user: %w", err)
	}

	s.log.Infoj(log.JSON{"msg": "user registered", "user_id": u.ID, "email": u.Email})
	s.publish(ctx, queue.NewAuthEvent(queue.UserRegistered, u.ID, u.Email, s.clock.Now()))
	return u, nil
}

func registrationOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrPasswordMismatch):
		return "password_mismatch"
	case errors.Is(err, ErrUserExists):
		return "user_exists"
	case errors.Is(err, ErrRoleAssignment):
		return "role_assignment"
	}
	return "error"
}
