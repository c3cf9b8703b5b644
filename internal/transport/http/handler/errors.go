package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-wallet-auth/internal/domain"
)

const internalErrorMessage = "internal error"

// errorPolicy adjusts the status mapping for one endpoint.
type errorPolicy struct {
	notFound int // status for domain.ErrNotFound
	// authPath collapses every 4xx to 401 so callers cannot tell a wrong
	// identity from a wrong proof.
	authPath bool
}

var (
	defaultPolicy = errorPolicy{notFound: http.StatusNotFound}
	noncePolicy   = errorPolicy{notFound: http.StatusBadRequest}
	authPolicy    = errorPolicy{notFound: http.StatusUnauthorized, authPath: true}
)

func statusFor(kind error, p errorPolicy) int {
	switch kind {
	case domain.ErrBadRequest, domain.ErrConflict:
		return http.StatusBadRequest
	case domain.ErrNotFound:
		return p.notFound
	case domain.ErrInvalidSignature, domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrUnauthorized, domain.ErrInvalidToken, domain.ErrTokenExpired, domain.ErrInvalidTokenKind:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeServiceError maps err to the failure envelope. Non-domain errors are
// logged in full and reach the caller only as "internal error".
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, p errorPolicy) {
	kind := domain.Kind(err)
	status := statusFor(kind, p)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "err", err)
		writeError(w, r, status, internalErrorMessage)
		return
	}

	msg := kind.Error()
	if errors.Is(kind, domain.ErrBadRequest) {
		// Validation messages name the offending fields.
		msg = err.Error()
	}
	if p.authPath {
		status = http.StatusUnauthorized
		switch kind {
		case domain.ErrInvalidToken, domain.ErrTokenExpired, domain.ErrInvalidTokenKind:
		default:
			msg = "authentication failed"
		}
	}
	slog.InfoContext(r.Context(), "request rejected", "status", status, "err", err)
	writeError(w, r, status, msg)
}
