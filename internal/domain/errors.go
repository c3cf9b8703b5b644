package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("user not found")
	ErrConflict     = errors.New("user already exists")
	ErrForbidden    = errors.New("wallet not verified")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")

	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidTokenKind = errors.New("invalid token kind")
)

// Known lists every sentinel above, most specific first.
var Known = []error{
	ErrInvalidSignature,
	ErrInvalidTokenKind,
	ErrTokenExpired,
	ErrInvalidToken,
	ErrNotFound,
	ErrConflict,
	ErrForbidden,
	ErrUnauthorized,
	ErrBadRequest,
}

// Kind returns the sentinel err wraps, or nil for non-domain errors.
func Kind(err error) error {
	for _, k := range Known {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
