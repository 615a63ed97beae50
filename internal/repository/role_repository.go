package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/techblog-auth/internal/model"
)

// RoleRepo reads the pre-seeded 'roles' table.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

// GetByAuthority fetches the role row for an authority.
func (r *RoleRepo) GetByAuthority(ctx context.Context, authority model.RoleType) (model.Role, error) {
	var (
		role model.Role
		name string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, authority FROM roles WHERE authority=? LIMIT 1", string(authority)).Scan(&role.ID, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Role{}, ErrNotFound
	}
	if err != nil {
		return model.Role{}, err
	}
	role.Authority = model.RoleType(name)
	return role, nil
}
