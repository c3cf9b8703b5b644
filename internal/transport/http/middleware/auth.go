package middleware

import (
	"context"
	"net/http"

	"github.com/go-wallet-auth/internal/application/authorizer"
)

type contextKey string

const decisionKey contextKey = "decision"

// Decider is satisfied by *authorizer.Authorizer.
type Decider interface {
	Decide(ctx context.Context, bearer string) authorizer.Decision
}

// Authorize runs every request through the authorizer and injects the
// decision into context. Denied requests never reach next.
func Authorize(d Decider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeJSONError(w, r, http.StatusUnauthorized, "missing authorization header")
				return
			}
			decision := d.Decide(r.Context(), header)
			if !decision.Allow {
				writeJSONError(w, r, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), decisionKey, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DecisionFromContext returns the allow decision injected by Authorize.
func DecisionFromContext(ctx context.Context) (authorizer.Decision, bool) {
	d, ok := ctx.Value(decisionKey).(authorizer.Decision)
	return d, ok && d.Allow
}

// WithDecision is used by tests and internal callers that authorize out of band.
func WithDecision(ctx context.Context, d authorizer.Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}
