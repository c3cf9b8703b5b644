package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-wallet-auth/internal/pkg/reqctx"
)

type errorEnvelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	RequestID  string `json:"requestId"`
}

// writeJSONError writes the failure envelope with the correct Content-Type.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		StatusCode: status,
		Message:    msg,
		RequestID:  reqctx.RequestID(r.Context()),
	})
}
