package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/go-wallet-auth/internal/application/signature"
	"github.com/go-wallet-auth/internal/application/token"
	"github.com/go-wallet-auth/internal/config"
	"github.com/go-wallet-auth/internal/domain"
	"github.com/go-wallet-auth/internal/infrastructure/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory UserRepository with the same conditional
// semantics as the DynamoDB repository.
type memRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (m *memRepo) Get(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (m *memRepo) GetByWalletID(_ context.Context, walletID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.WalletID == walletID {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRepo) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.WalletID == u.WalletID {
			return domain.ErrConflict
		}
	}
	m.users[u.UserID] = *u
	return nil
}

func (m *memRepo) Update(_ context.Context, userID string, updates map[string]interface{}) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	apply(&u, updates)
	m.users[userID] = u
	return &u, nil
}

func (m *memRepo) UpdateIfNonce(_ context.Context, userID, nonce string, updates map[string]interface{}) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.Nonce != nonce {
		return nil, domain.ErrConflict
	}
	apply(&u, updates)
	m.users[userID] = u
	return &u, nil
}

func apply(u *domain.User, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "nonce":
			u.Nonce = v.(string)
		case "verified":
			u.Verified = v.(bool)
		case "admin":
			u.Admin = v.(bool)
		case "last_login":
			u.LastLogin = v.(time.Time)
		case "expiry_time":
			u.ExpiryTime = nil
			if v != nil {
				exp := v.(int64)
				u.ExpiryTime = &exp
			}
		}
	}
}

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenExpiry:  5 * time.Minute,
		RefreshTokenExpiry: time.Hour,
		UnverifiedUserTTL:  15 * time.Minute,
		RefreshCookieName:  "refresh_token",
		CookiePath:         "/v1/auth",
		AllowedOrigins:     []string{"https://app.example"},
		RequestTimeout:     5 * time.Second,
		RateLimitRPS:       100,
		RateLimitBurst:     100,
	}
}

type client struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func (c *client) do(method, target string, body interface{}, bearer string) (*httptest.ResponseRecorder, map[string]interface{}) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rr := httptest.NewRecorder()
	c.h.ServeHTTP(rr, req)
	for _, ck := range rr.Result().Cookies() {
		if ck.Name == "refresh_token" {
			c.cookie = ck
		}
	}
	out := map[string]interface{}{}
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	return rr, out
}

func TestRouter_WalletLoginFlow(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := token.NewService(signer.NewKeySigner(key), token.Options{
		Issuer: "wallet-auth", Audience: "wallet-auth-api",
		AccessExpiry: 5 * time.Minute, RefreshExpiry: time.Hour,
	})
	repo := &memRepo{users: map[string]domain.User{}}
	c := &client{t: t, h: NewRouter(testConfig(), &Deps{UserRepo: repo, Tokens: tokens})}

	walletKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	wallet := signature.PublicKeyToAddress(walletKey.PubKey())

	// Unknown wallet: nonce lookup is a 400, not a 404.
	rr, body := c.do(http.MethodGet, "/v1/users/"+wallet+"/nonce?purpose=sign", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["requestId"])

	rr, _ = c.do(http.MethodPost, "/v1/users", map[string]interface{}{"walletId": wallet}, "")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr, body = c.do(http.MethodGet, "/v1/users/"+wallet+"/nonce?purpose=sign", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	signNonce := body["nonce"].(string)

	rr, _ = c.do(http.MethodPost, "/v1/users", map[string]interface{}{
		"walletId": wallet, "verify": true, "signature": signature.SignMessage(walletKey, signNonce),
	}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body = c.do(http.MethodGet, "/v1/users/"+wallet+"/nonce?purpose=login", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["verified"])
	loginNonce := body["nonce"].(string)

	loginBody := map[string]interface{}{"walletId": wallet, "signature": signature.SignMessage(walletKey, loginNonce)}
	rr, body = c.do(http.MethodPost, "/v1/auth/login", loginBody, "")
	require.Equal(t, http.StatusOK, rr.Code)
	access := body["authToken"].(string)
	require.NotNil(t, c.cookie)
	assert.NotEmpty(t, c.cookie.Value)

	// The same signature cannot log in twice.
	rr, _ = c.do(http.MethodPost, "/v1/auth/login", loginBody, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, body = c.do(http.MethodGet, "/v1/users/me", nil, access)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, wallet, body["user"].(map[string]interface{})["walletId"])

	rr, _ = c.do(http.MethodGet, "/v1/users/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Not an admin yet.
	rr, _ = c.do(http.MethodGet, "/v1/users/"+body["user"].(map[string]interface{})["userId"].(string), nil, access)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, body = c.do(http.MethodPost, "/v1/auth/refresh", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, body["authToken"])

	rr, _ = c.do(http.MethodPost, "/v1/auth/logout", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, c.cookie.Value)

	rr, _ = c.do(http.MethodPost, "/v1/auth/refresh", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_CORSAllowsCredentials(t *testing.T) {
	h := NewRouter(testConfig(), &Deps{UserRepo: &memRepo{users: map[string]domain.User{}}})
	req := httptest.NewRequest(http.MethodOptions, "/v1/auth/refresh", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRouter_HealthCheck(t *testing.T) {
	h := NewRouter(testConfig(), &Deps{UserRepo: &memRepo{users: map[string]domain.User{}}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func nonceStatuses(t *testing.T, cfg *config.Config, forwarded ...string) []int {
	t.Helper()
	h := NewRouter(cfg, &Deps{UserRepo: &memRepo{users: map[string]domain.User{}}})
	codes := make([]int, 0, len(forwarded))
	for _, xff := range forwarded {
		req := httptest.NewRequest(http.MethodGet, "/v1/users/0x52908400098527886e0f7030069857d2e4169ee7/nonce?purpose=login", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	return codes
}

func TestRouter_RateLimitIgnoresForwardedForByDefault(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS, cfg.RateLimitBurst = 1, 1

	codes := nonceStatuses(t, cfg, "203.0.113.1", "203.0.113.2")
	assert.NotEqual(t, http.StatusTooManyRequests, codes[0])
	assert.Equal(t, http.StatusTooManyRequests, codes[1])
}

func TestRouter_RateLimitUsesForwardedForBehindTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS, cfg.RateLimitBurst = 1, 1
	cfg.TrustProxyHeaders = true

	codes := nonceStatuses(t, cfg, "203.0.113.1", "203.0.113.2")
	assert.NotContains(t, codes, http.StatusTooManyRequests)
}
