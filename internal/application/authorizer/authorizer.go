// Package authorizer turns a bearer token into an allow/deny decision for
// the gateway. It reads no state besides the token itself.
package authorizer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-wallet-auth/internal/application/token"
	"github.com/go-wallet-auth/internal/domain"
)

// UnknownPrincipal identifies the caller of a denied request.
const UnknownPrincipal = "Unknown"

// Decision is the outcome handed to protected handlers.
type Decision struct {
	Allow       bool
	PrincipalID string
	Admin       bool
	Claims      *token.Claims
}

type verifier interface {
	Verify(ctx context.Context, tokenStr string, kind token.Kind) (*token.Claims, error)
}

type Authorizer struct {
	tokens verifier
}

func New(tokens verifier) *Authorizer {
	return &Authorizer{tokens: tokens}
}

// Decide verifies bearer as an access token. An optional "Bearer " prefix
// is accepted. Every failure is a deny; none is returned as an error.
func (a *Authorizer) Decide(ctx context.Context, bearer string) Decision {
	raw := strings.TrimSpace(bearer)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	claims, err := a.tokens.Verify(ctx, raw, token.Access)
	if err != nil {
		if domain.Kind(err) == nil {
			slog.ErrorContext(ctx, "authorizer could not verify token", "err", err)
		} else {
			slog.DebugContext(ctx, "access denied", "err", err)
		}
		return Decision{PrincipalID: UnknownPrincipal}
	}
	return Decision{
		Allow:       true,
		PrincipalID: claims.Subject,
		Admin:       claims.Admin,
		Claims:      claims,
	}
}
