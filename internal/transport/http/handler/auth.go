package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-wallet-auth/internal/application/auth"
	"github.com/go-wallet-auth/internal/domain"
	"github.com/go-wallet-auth/internal/pkg/validate"
)

const maxBodyBytes = 1 << 16

// CookieConfig describes the refresh-token cookie.
type CookieConfig struct {
	Name   string
	Domain string
	Path   string
	MaxAge time.Duration
}

// AuthHandler exposes the wallet authentication use cases.
type AuthHandler struct {
	svc          auth.Service
	cookie       CookieConfig
	accessExpiry time.Duration
}

func NewAuthHandler(svc auth.Service, cookie CookieConfig, accessExpiry time.Duration) *AuthHandler {
	return &AuthHandler{svc: svc, cookie: cookie, accessExpiry: accessExpiry}
}

// CreateUser registers a wallet, or proves ownership when verify is true.
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, err, defaultPolicy)
		return
	}
	u, err := h.svc.CreateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, defaultPolicy)
		return
	}
	status := http.StatusCreated
	if req.Verify {
		status = http.StatusOK
	}
	writeJSON(w, status, UserEnvelope{Success: true, User: toSafeUser(u), RequestID: requestID(r)})
}

func (h *AuthHandler) GetNonce(w http.ResponseWriter, r *http.Request) {
	req := domain.NonceRequest{
		WalletID: chi.URLParam(r, "walletId"),
		Purpose:  r.URL.Query().Get("purpose"),
	}
	if err := validate.Struct(&req); err != nil {
		writeServiceError(w, r, err, noncePolicy)
		return
	}
	res, err := h.svc.GetNonce(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, noncePolicy)
		return
	}
	writeJSON(w, http.StatusOK, NonceEnvelope{
		Success: true, Nonce: res.Nonce, Verified: res.Verified, RequestID: requestID(r),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, err, authPolicy)
		return
	}
	pair, err := h.svc.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, authPolicy)
		return
	}
	h.writeTokens(w, r, pair)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	pair, err := h.svc.Refresh(r.Context(), h.refreshCookie(r))
	if err != nil {
		writeServiceError(w, r, err, authPolicy)
		return
	}
	h.writeTokens(w, r, pair)
}

// Logout clears the refresh cookie. The token itself stays valid until it
// expires; there is no server-side revocation.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), h.refreshCookie(r)); err != nil {
		writeServiceError(w, r, err, authPolicy)
		return
	}
	http.SetCookie(w, h.newCookie("", -1, time.Unix(0, 0)))
	writeJSON(w, http.StatusOK, MessageEnvelope{Success: true, Message: "logged out", RequestID: requestID(r)})
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, r *http.Request, pair *auth.TokenPair) {
	http.SetCookie(w, h.newCookie(pair.RefreshToken, int(h.cookie.MaxAge.Seconds()), time.Time{}))
	writeJSON(w, http.StatusOK, TokenEnvelope{
		Success:     true,
		UserID:      pair.UserID,
		AccessToken: pair.AccessToken,
		ExpiresIn:   int64(h.accessExpiry.Seconds()),
		RequestID:   requestID(r),
	})
}

func (h *AuthHandler) newCookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Domain:   h.cookie.Domain,
		Path:     h.cookie.Path,
		MaxAge:   maxAge,
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (h *AuthHandler) refreshCookie(r *http.Request) string {
	c, err := r.Cookie(h.cookie.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

// decodeBody reads a JSON body into dst and runs struct validation.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrBadRequest)
	}
	return validate.Struct(dst)
}
