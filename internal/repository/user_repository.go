package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/techblog-auth/internal/model"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// toMillis normalizes timestamps into UTC unix milliseconds for storage.
func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

// fromMillis restores a UTC timestamp from stored milliseconds.
func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// UserRepo reads and writes the 'users' and 'user_roles' tables.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,first_name,last_name,email,password_hash,profile_img,created_at,updated_at"

// GetByEmail fetches a user row (without roles or token) by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// ExistsByEmail reports whether a user with the email is present.
func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email=?", email).Scan(&n)
	return n > 0, err
}

// RolesOf loads the roles granted to a user ordered by role id.
func (r *UserRepo) RolesOf(ctx context.Context, userID uint64) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT r.id, r.authority FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id=? ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []model.Role
	for rows.Next() {
		var role model.Role
		var authority string
		if err := rows.Scan(&role.ID, &authority); err != nil {
			return nil, err
		}
		role.Authority = model.RoleType(authority)
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func insertUser(ctx context.Context, q queryer, u *model.User, now time.Time) error {
	res, err := q.ExecContext(ctx,
		"INSERT INTO users (first_name,last_name,email,password_hash,profile_img,created_at,updated_at) VALUES (?,?,?,?,?,?,?)",
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.ProfileImg, toMillis(now), toMillis(now))
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	u.CreatedAt = fromMillis(toMillis(now))
	u.UpdatedAt = u.CreatedAt
	return nil
}

func updateUser(ctx context.Context, q queryer, u *model.User, now time.Time) error {
	res, err := q.ExecContext(ctx,
		"UPDATE users SET first_name=?, last_name=?, email=?, password_hash=?, profile_img=?, updated_at=? WHERE id=?",
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.ProfileImg, toMillis(now), u.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update user %d: %w", u.ID, ErrNotFound)
	}
	u.UpdatedAt = fromMillis(toMillis(now))
	return nil
}

// replaceRoles rewrites the user's role links so they match u.Roles.
func replaceRoles(ctx context.Context, q queryer, u model.User) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id=?", u.ID); err != nil {
		return err
	}
	for _, role := range u.Roles {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO user_roles (user_id, role_id) VALUES (?,?)", u.ID, role.ID); err != nil {
			return err
		}
	}
	return nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u          model.User
		profileImg sql.NullString
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &profileImg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if profileImg.Valid {
		img := profileImg.String
		u.ProfileImg = &img
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}
