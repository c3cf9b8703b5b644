// Package ethrpc checks wallet addresses against an Ethereum JSON-RPC
// provider. The check is advisory: only an explicit rejection by the
// provider fails a request.
package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-wallet-auth/internal/domain"
	"github.com/go-wallet-auth/internal/infrastructure/secrets"
)

// JSON-RPC 2.0 "invalid params": the provider could not parse the address.
const codeInvalidParams = -32602

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Validator asks the provider for an address's transaction count, which
// fails only when the address itself is malformed.
type Validator struct {
	endpoint string
	creds    secrets.Credentials
	http     *http.Client
}

// NewValidator returns nil when creds is nil so callers can treat a
// disabled check as an absent dependency.
func NewValidator(baseURL string, creds *secrets.Credentials, timeout time.Duration) *Validator {
	if creds == nil {
		return nil
	}
	return &Validator{
		endpoint: strings.TrimRight(baseURL, "/") + "/" + creds.ProjectID,
		creds:    *creds,
		http:     &http.Client{Timeout: timeout},
	}
}

// Validate returns a domain.ErrBadRequest-wrapped error if the provider
// rejects walletID. Transport failures are logged and ignored.
func (v *Validator) Validate(ctx context.Context, walletID string) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_getTransactionCount",
		Params:  []interface{}{walletID, "latest"},
	})
	if err != nil {
		return fmt.Errorf("encode rpc request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.creds.ProjectSecret != "" {
		req.SetBasicAuth("", v.creds.ProjectSecret)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "address validation unavailable", "wallet_id", walletID, "err", err)
		return nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		slog.WarnContext(ctx, "address validation unavailable", "wallet_id", walletID, "err", err)
		return nil
	}
	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.WarnContext(ctx, "address validation unavailable",
			"wallet_id", walletID, "status", resp.StatusCode, "err", err)
		return nil
	}
	if out.Error != nil {
		if out.Error.Code == codeInvalidParams {
			return fmt.Errorf("wallet %s rejected: %s: %w", walletID, out.Error.Message, domain.ErrBadRequest)
		}
		slog.WarnContext(ctx, "address validation unavailable",
			"wallet_id", walletID, "code", out.Error.Code, "message", out.Error.Message)
	}
	return nil
}
