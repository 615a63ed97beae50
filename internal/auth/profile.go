package auth

import (
	"context"
	"errors"

	"github.com/iliyamo/techblog-auth/internal/model"
	"github.com/iliyamo/techblog-auth/internal/repository"
)

// ErrUserNotFound is returned by Profile when the token subject no longer
// exists.
var ErrUserNotFound = errors.New("user not found")

// Profile returns the user an access token was minted for.
func (s *Service) Profile(ctx context.Context, email string) (model.User, error) {
	u, err := s.store.FindUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}
