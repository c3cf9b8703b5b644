// Package auth implements the wallet authentication use cases: registering
// and proving a wallet, handing out nonces, login, token refresh and logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-wallet-auth/internal/application/nonce"
	"github.com/go-wallet-auth/internal/application/signature"
	"github.com/go-wallet-auth/internal/application/token"
	"github.com/go-wallet-auth/internal/domain"
	"github.com/go-wallet-auth/internal/infrastructure/sns"
	"github.com/go-wallet-auth/internal/pkg/id"
	"github.com/go-wallet-auth/internal/pkg/reqctx"
	"golang.org/x/sync/errgroup"
)

// NonceResult is the message a wallet must sign next.
type NonceResult struct {
	Nonce    string `json:"nonce"`
	Verified bool   `json:"verified"`
}

// TokenPair is returned by login and refresh. RefreshToken never goes into
// a response body; the transport moves it to a cookie.
type TokenPair struct {
	UserID       string `json:"userId"`
	AccessToken  string `json:"authToken"`
	RefreshToken string `json:"-"`
}

type Service interface {
	CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	GetNonce(ctx context.Context, req domain.NonceRequest) (*NonceResult, error)
	Login(ctx context.Context, req domain.LoginRequest) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

type userStore interface {
	nonce.Store
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByWalletID(ctx context.Context, walletID string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

type tokenService interface {
	CreateAccessToken(ctx context.Context, userID string, admin bool) (string, error)
	CreateRefreshToken(ctx context.Context, userID string) (string, error)
	Verify(ctx context.Context, tokenStr string, kind token.Kind) (*token.Claims, error)
}

type signatureVerifier interface {
	Verify(ctx context.Context, walletID, message, signature string) bool
}

// AddressValidator is an optional external check of a wallet address.
type AddressValidator interface {
	Validate(ctx context.Context, walletID string) error
}

// EventPublisher receives login events. Failures never fail a login.
type EventPublisher interface {
	PublishLogin(ctx context.Context, ev sns.LoginEvent) error
}

type service struct {
	users         userStore
	nonces        *nonce.Manager
	tokens        tokenService
	verifier      signatureVerifier
	validator     AddressValidator
	events        EventPublisher
	unverifiedTTL time.Duration
	verifiedTTL   time.Duration
	now           func() time.Time
}

type ServiceDeps struct {
	UserRepo      userStore
	Tokens        tokenService
	Verifier      signatureVerifier
	Validator     AddressValidator // nil disables the external check
	Events        EventPublisher   // nil disables login events
	UnverifiedTTL time.Duration
	VerifiedTTL   time.Duration // 0 keeps verified users forever
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:         deps.UserRepo,
		nonces:        nonce.NewManager(deps.UserRepo),
		tokens:        deps.Tokens,
		verifier:      deps.Verifier,
		validator:     deps.Validator,
		events:        deps.Events,
		unverifiedTTL: deps.UnverifiedTTL,
		verifiedTTL:   deps.VerifiedTTL,
		now:           time.Now,
	}
}

// CreateUser registers walletID, or with req.Verify proves ownership of an
// existing registration by signing its sign-purpose nonce.
func (s *service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	walletID, err := s.checkWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	existing, err := s.users.GetByWalletID(ctx, walletID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if req.Verify {
			return nil, err
		}
		return s.register(ctx, walletID)
	case err != nil:
		return nil, err
	case !req.Verify:
		return nil, fmt.Errorf("wallet %s: %w", walletID, domain.ErrConflict)
	}

	msg := nonce.Message(nonce.PurposeSign, existing.Nonce)
	if !s.verifier.Verify(ctx, walletID, msg, req.Signature) {
		return nil, fmt.Errorf("wallet %s: %w", walletID, domain.ErrInvalidSignature)
	}
	changes := map[string]interface{}{
		domain.FieldVerified:   true,
		domain.FieldExpiryTime: nil,
	}
	if s.verifiedTTL > 0 {
		changes[domain.FieldExpiryTime] = s.now().Add(s.verifiedTTL).Unix()
	}
	rot, err := s.nonces.Rotate(ctx, existing, changes)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "wallet verified", "user_id", rot.User.UserID, "wallet_id", walletID)
	return rot.User, nil
}

func (s *service) register(ctx context.Context, walletID string) (*domain.User, error) {
	n, err := nonce.Issue()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	expiry := now.Add(s.unverifiedTTL).Unix()
	u := &domain.User{
		UserID:      id.New(),
		WalletID:    walletID,
		Nonce:       n,
		CreatedTime: now,
		ExpiryTime:  &expiry,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "user created", "user_id", u.UserID, "wallet_id", walletID)
	return u, nil
}

// GetNonce never changes state; the prefix depends only on req.Purpose.
func (s *service) GetNonce(ctx context.Context, req domain.NonceRequest) (*NonceResult, error) {
	purpose, err := nonce.ParsePurpose(req.Purpose)
	if err != nil {
		return nil, err
	}
	if !signature.IsHexAddress(req.WalletID) {
		return nil, fmt.Errorf("invalid wallet address %q: %w", req.WalletID, domain.ErrBadRequest)
	}
	u, err := s.users.GetByWalletID(ctx, signature.Normalize(req.WalletID))
	if err != nil {
		return nil, err
	}
	return &NonceResult{Nonce: nonce.Message(purpose, u.Nonce), Verified: u.Verified}, nil
}

// Login proves the wallet with a login-purpose signature. The nonce is
// consumed before any token exists.
func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*TokenPair, error) {
	if !signature.IsHexAddress(req.WalletID) {
		return nil, fmt.Errorf("invalid wallet address %q: %w", req.WalletID, domain.ErrBadRequest)
	}
	walletID := signature.Normalize(req.WalletID)
	u, err := s.users.GetByWalletID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !u.Verified {
		return nil, fmt.Errorf("wallet %s: %w", walletID, domain.ErrForbidden)
	}
	if !s.verifier.Verify(ctx, walletID, nonce.Message(nonce.PurposeLogin, u.Nonce), req.Signature) {
		return nil, fmt.Errorf("wallet %s: %w", walletID, domain.ErrInvalidSignature)
	}
	rot, err := s.nonces.Rotate(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	pair, err := s.issue(ctx, rot.User)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "user logged in", "user_id", u.UserID, "wallet_id", walletID)
	s.publishLogin(ctx, rot)
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new pair. The admin claim
// is taken from the current record, not the presented token.
func (s *service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(ctx, refreshToken, token.Refresh)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("subject %s no longer exists: %w", claims.Subject, domain.ErrInvalidToken)
		}
		return nil, err
	}
	return s.issue(ctx, u)
}

// Logout only proves the caller holds a valid refresh token. Nothing is
// revoked server side; the transport clears the cookie.
func (s *service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.Verify(ctx, refreshToken, token.Refresh)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "user logged out", "user_id", claims.Subject)
	return nil
}

// issue creates both tokens concurrently.
func (s *service) issue(ctx context.Context, u *domain.User) (*TokenPair, error) {
	pair := &TokenPair{UserID: u.UserID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.tokens.CreateAccessToken(gctx, u.UserID, u.Admin)
		pair.AccessToken = t
		return err
	})
	g.Go(func() error {
		t, err := s.tokens.CreateRefreshToken(gctx, u.UserID)
		pair.RefreshToken = t
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *service) checkWallet(ctx context.Context, walletID string) (string, error) {
	if !signature.IsHexAddress(walletID) {
		return "", fmt.Errorf("invalid wallet address %q: %w", walletID, domain.ErrBadRequest)
	}
	walletID = signature.Normalize(walletID)
	if s.validator != nil {
		if err := s.validator.Validate(ctx, walletID); err != nil {
			return "", err
		}
	}
	return walletID, nil
}

func (s *service) publishLogin(ctx context.Context, rot *nonce.Rotation) {
	if s.events == nil {
		return
	}
	ev := sns.LoginEvent{
		UserID:    rot.User.UserID,
		WalletID:  rot.User.WalletID,
		SourceIP:  reqctx.SourceIP(ctx),
		RequestID: reqctx.RequestID(ctx),
		At:        rot.LoginTime,
	}
	if err := s.events.PublishLogin(ctx, ev); err != nil {
		slog.WarnContext(ctx, "login event not published", "user_id", ev.UserID, "err", err)
	}
}
