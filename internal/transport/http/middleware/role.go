package middleware

import (
	"net/http"
)

// RequireAdmin allows only callers whose access token carries admin=true.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := DecisionFromContext(r.Context())
		if !ok {
			writeJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !d.Admin {
			writeJSONError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
