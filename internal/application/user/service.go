package user

import (
	"context"

	"github.com/go-wallet-auth/internal/domain"
)

const fieldAdmin = "admin"

// Service exposes stored user records to authenticated callers.
type Service interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	SetAdmin(ctx context.Context, userID string, admin bool) (*domain.User, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) (*domain.User, error)
}

type service struct {
	repo userStore
}

func NewService(repo userStore) Service {
	return &service{repo: repo}
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

// SetAdmin changes the flag carried by the user's next access token. Tokens
// already issued keep their claim until they expire.
func (s *service) SetAdmin(ctx context.Context, userID string, admin bool) (*domain.User, error) {
	return s.repo.Update(ctx, userID, map[string]interface{}{fieldAdmin: admin})
}
