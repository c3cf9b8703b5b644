package http

import (
	"context"

	"github.com/go-wallet-auth/internal/application/auth"
	"github.com/go-wallet-auth/internal/application/token"
	"github.com/go-wallet-auth/internal/domain"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	// GetByWalletID resolves through the wallet_id GSI.
	GetByWalletID(ctx context.Context, walletID string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) (*domain.User, error)
	UpdateIfNonce(ctx context.Context, userID, nonce string, updates map[string]interface{}) (*domain.User, error)
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo  UserRepository
	Tokens    *token.Service
	Validator auth.AddressValidator // optional
	Events    auth.EventPublisher   // optional
}
