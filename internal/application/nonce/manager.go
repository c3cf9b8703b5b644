// Package nonce issues and rotates the single-use values users sign to prove
// wallet ownership.
package nonce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-wallet-auth/internal/domain"
)

// Purpose scopes a nonce to one kind of proof. The stored value is never
// signed raw, so a signature for one purpose cannot be replayed for another.
type Purpose string

const (
	PurposeLogin Purpose = "login"
	PurposeSign  Purpose = "sign"
)

const nonceBytes = 32

// ParsePurpose accepts only the known purposes.
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(s); p {
	case PurposeLogin, PurposeSign:
		return p, nil
	}
	return "", fmt.Errorf("unknown nonce purpose %q: %w", s, domain.ErrBadRequest)
}

// Message is the exact text a wallet signs for purpose.
func Message(p Purpose, nonce string) string {
	return string(p) + ":" + nonce
}

// Issue generates a cryptographically random 64-character hex nonce.
func Issue() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Store is the slice of the user store rotation needs. UpdateIfNonce must
// apply updates only while the stored nonce still equals nonce, returning
// domain.ErrConflict otherwise.
type Store interface {
	UpdateIfNonce(ctx context.Context, userID, nonce string, updates map[string]interface{}) (*domain.User, error)
}

// Rotation is the outcome of a successful rotation.
type Rotation struct {
	User      *domain.User
	Nonce     string
	LoginTime time.Time
}

type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Rotate replaces u's nonce and records the event time together with any
// extra attribute changes in one conditional write. It fails with
// domain.ErrInvalidSignature when another request consumed the nonce first.
func (m *Manager) Rotate(ctx context.Context, u *domain.User, changes map[string]interface{}) (*Rotation, error) {
	next, err := Issue()
	if err != nil {
		return nil, err
	}
	at := m.now().UTC()
	updates := map[string]interface{}{
		domain.FieldNonce:     next,
		domain.FieldLastLogin: at,
	}
	for k, v := range changes {
		updates[k] = v
	}
	updated, err := m.store.UpdateIfNonce(ctx, u.UserID, u.Nonce, updates)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("nonce already used: %w", domain.ErrInvalidSignature)
		}
		return nil, fmt.Errorf("rotate nonce for user %s: %w", u.UserID, err)
	}
	return &Rotation{User: updated, Nonce: next, LoginTime: at}, nil
}
