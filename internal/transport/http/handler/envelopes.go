package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-wallet-auth/internal/domain"
	"github.com/go-wallet-auth/internal/pkg/reqctx"
)

// Every response carries success and the request id. Fields in between
// depend on the endpoint.

type MessageEnvelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId"`
}

type ErrorEnvelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	RequestID  string `json:"requestId"`
}

type UserEnvelope struct {
	Success   bool      `json:"success"`
	User      *SafeUser `json:"user"`
	RequestID string    `json:"requestId"`
}

type NonceEnvelope struct {
	Success   bool   `json:"success"`
	Nonce     string `json:"nonce"`
	Verified  bool   `json:"verified"`
	RequestID string `json:"requestId"`
}

// TokenEnvelope carries the access token only; the refresh token travels
// in the cookie.
type TokenEnvelope struct {
	Success     bool   `json:"success"`
	UserID      string `json:"userId"`
	AccessToken string `json:"authToken"`
	ExpiresIn   int64  `json:"expiresIn"`
	RequestID   string `json:"requestId"`
}

// SafeUser is the public projection of a user record. The nonce is never
// exposed here; clients fetch it through the nonce endpoint.
type SafeUser struct {
	UserID      string    `json:"userId"`
	WalletID    string    `json:"walletId"`
	Verified    bool      `json:"verified"`
	Admin       bool      `json:"admin"`
	CreatedTime time.Time `json:"createdTime"`
	LastLogin   time.Time `json:"lastLogin"`
	ExpiryTime  *int64    `json:"expiryTime,omitempty"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		UserID:      u.UserID,
		WalletID:    u.WalletID,
		Verified:    u.Verified,
		Admin:       u.Admin,
		CreatedTime: u.CreatedTime,
		LastLogin:   u.LastLogin,
		ExpiryTime:  u.ExpiryTime,
	}
}

func requestID(r *http.Request) string { return reqctx.RequestID(r.Context()) }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, ErrorEnvelope{StatusCode: status, Message: msg, RequestID: requestID(r)})
}
