package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/techblog-auth/internal/model"
)

// TokenRepo persists the single refresh token record of each user.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// GetByUser returns the user's refresh token record.
func (r *TokenRepo) GetByUser(ctx context.Context, userID uint64) (model.Token, error) {
	var (
		t      model.Token
		expire int64
		valid  bool
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, refresh_token, expire_time, is_valid FROM tokens WHERE user_id=? LIMIT 1",
		userID).Scan(&t.ID, &t.UserID, &t.RefreshToken, &expire, &valid)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Token{}, ErrNotFound
	}
	if err != nil {
		return model.Token{}, err
	}
	t.ExpireTime = fromMillis(expire)
	t.IsValid = valid
	return t, nil
}

// Invalidate clears the validity flag of the user's token.  It is a no-op
// when the user has no token.
func (r *TokenRepo) Invalidate(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE tokens SET is_valid=0 WHERE user_id=?", userID)
	return err
}

// replaceToken drops whatever token the user had and inserts t in its place,
// keeping at most one row per user.
func replaceToken(ctx context.Context, q queryer, userID uint64, t *model.Token) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM tokens WHERE user_id=?", userID); err != nil {
		return err
	}
	res, err := q.ExecContext(ctx,
		"INSERT INTO tokens (user_id, refresh_token, expire_time, is_valid) VALUES (?,?,?,?)",
		userID, t.RefreshToken, toMillis(t.ExpireTime), t.IsValid)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.UserID = userID
	t.ExpireTime = fromMillis(toMillis(t.ExpireTime))
	return nil
}
