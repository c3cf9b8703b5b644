// Package token mints and verifies the access and refresh JWTs. Signing is
// delegated to a Signer so private key material never enters the process
// when a managed key service is used.
package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-wallet-auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// Timestamps carry sub-second digits so tokens issued within the same second
// still get distinct expiries.
func init() {
	jwt.TimePrecision = time.Microsecond
}

// Kind distinguishes access from refresh tokens; it travels as the refresh claim.
type Kind int

const (
	Access Kind = iota
	Refresh
)

func (k Kind) String() string {
	if k == Refresh {
		return "refresh"
	}
	return "access"
}

// Claims holds the JWT payload fields.
type Claims struct {
	Admin   bool `json:"admin"`
	Refresh bool `json:"refresh"`
	jwt.RegisteredClaims
}

// Kind reports which kind of token carried these claims.
func (c *Claims) Kind() Kind {
	if c.Refresh {
		return Refresh
	}
	return Access
}

// Signer produces RSA-PSS SHA-256 signatures with a key it never exposes.
type Signer interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
	PublicKey(ctx context.Context) (*rsa.PublicKey, error)
}

type Options struct {
	Issuer        string
	Audience      string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// Service signs and verifies PS256 JWTs.
type Service struct {
	signer Signer
	opts   Options
	now    func() time.Time

	key   atomic.Pointer[rsa.PublicKey]
	group singleflight.Group

	// latest expiry handed out per Kind, in unix milliseconds
	lastExp [2]atomic.Int64
}

func NewService(signer Signer, opts Options) *Service {
	return &Service{signer: signer, opts: opts, now: time.Now}
}

func (s *Service) AccessExpiry() time.Duration  { return s.opts.AccessExpiry }
func (s *Service) RefreshExpiry() time.Duration { return s.opts.RefreshExpiry }

func (s *Service) CreateAccessToken(ctx context.Context, userID string, admin bool) (string, error) {
	return s.create(ctx, userID, admin, Access, s.opts.AccessExpiry)
}

func (s *Service) CreateRefreshToken(ctx context.Context, userID string) (string, error) {
	return s.create(ctx, userID, false, Refresh, s.opts.RefreshExpiry)
}

func (s *Service) create(ctx context.Context, userID string, admin bool, kind Kind, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Admin:   admin,
		Refresh: kind == Refresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.opts.Issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{s.opts.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.expiry(kind, now.Add(ttl))),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodPS256, claims)
	signingString, err := tok.SigningString()
	if err != nil {
		return "", fmt.Errorf("encode %s token: %w", kind, err)
	}
	sig, err := s.signer.Sign(ctx, []byte(signingString))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signingString + "." + tok.EncodeSegment(sig), nil
}

// expiry returns exp at millisecond granularity, moved forward when needed so
// that every token of a kind expires strictly later than the one issued before it.
func (s *Service) expiry(kind Kind, exp time.Time) time.Time {
	last := &s.lastExp[kind]
	want := exp.UnixMilli()
	for {
		prev := last.Load()
		next := max(want, prev+1)
		if last.CompareAndSwap(prev, next) {
			return time.UnixMilli(next)
		}
	}
}

// Verify checks signature, issuer, audience and expiry of tokenStr and that
// it is of the expected kind.
func (s *Service) Verify(ctx context.Context, tokenStr string, kind Kind) (*Claims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, fmt.Errorf("missing %s token: %w", kind, domain.ErrInvalidToken)
	}
	key, err := s.publicKey(ctx)
	if err != nil {
		return nil, err
	}
	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodPS256.Alg()}),
		jwt.WithIssuer(s.opts.Issuer),
		jwt.WithAudience(s.opts.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s token: %w", kind, domain.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token without subject: %w", domain.ErrInvalidToken)
	}
	if claims.Kind() != kind {
		return nil, fmt.Errorf("expected %s token, got %s: %w", kind, claims.Kind(), domain.ErrInvalidTokenKind)
	}
	return claims, nil
}

// publicKey fetches the signer's key once per process. Concurrent first
// callers share one fetch; a failed fetch is retried by the next caller.
func (s *Service) publicKey(ctx context.Context) (*rsa.PublicKey, error) {
	if k := s.key.Load(); k != nil {
		return k, nil
	}
	v, err, _ := s.group.Do("public-key", func() (interface{}, error) {
		if k := s.key.Load(); k != nil {
			return k, nil
		}
		k, err := s.signer.PublicKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch signer public key: %w", err)
		}
		s.key.Store(k)
		return k, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*rsa.PublicKey), nil
}
