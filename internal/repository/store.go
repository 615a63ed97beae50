package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/techblog-auth/internal/model"
)

// Store combines the user, role and token repositories into the credential
// store used by the auth flows.  It owns the User→Role and User→Token
// relationships: reads assemble them, SaveUser writes them atomically.
type Store struct {
	DB     *sql.DB
	Users  *UserRepo
	Roles  *RoleRepo
	Tokens *TokenRepo

	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		DB:     db,
		Users:  NewUserRepo(db),
		Roles:  NewRoleRepo(db),
		Tokens: NewTokenRepo(db),
		now:    time.Now,
	}
}

// FindUserByEmail loads the user with its roles and refresh token record.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		return model.User{}, err
	}
	if u.Roles, err = s.Users.RolesOf(ctx, u.ID); err != nil {
		return model.User{}, fmt.Errorf("load roles: %w", err)
	}
	tok, err := s.Tokens.GetByUser(ctx, u.ID)
	switch {
	case err == nil:
		u.Token = &tok
	case !errors.Is(err, ErrNotFound):
		return model.User{}, fmt.Errorf("load token: %w", err)
	}
	return u, nil
}

// ExistsByEmail reports whether the email is already registered.
func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.Users.ExistsByEmail(ctx, email)
}

// FindRoleByAuthority returns the seeded role for an authority.
func (s *Store) FindRoleByAuthority(ctx context.Context, authority model.RoleType) (model.Role, error) {
	return s.Roles.GetByAuthority(ctx, authority)
}

// InvalidateRefreshToken marks the user's refresh token as no longer valid.
func (s *Store) InvalidateRefreshToken(ctx context.Context, userID uint64) error {
	return s.Tokens.Invalidate(ctx, userID)
}

// SaveUser inserts the user when ID is zero and updates it otherwise.  Role
// links are rewritten to match u.Roles and, when u.Token is set, the user's
// token row is replaced.  Everything happens in one transaction so a
// cancelled context never leaves a half-written token behind.
func (s *Store) SaveUser(ctx context.Context, u model.User) (model.User, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	if u.ID == 0 {
		err = insertUser(ctx, tx, &u, now)
	} else {
		err = updateUser(ctx, tx, &u, now)
	}
	if err != nil {
		return model.User{}, err
	}
	if err := replaceRoles(ctx, tx, u); err != nil {
		return model.User{}, fmt.Errorf("save roles: %w", err)
	}
	if u.Token != nil {
		tok := *u.Token
		if err := replaceToken(ctx, tx, u.ID, &tok); err != nil {
			return model.User{}, fmt.Errorf("save token: %w", err)
		}
		u.Token = &tok
	}
	if err := tx.Commit(); err != nil {
		return model.User{}, err
	}
	return u, nil
}
