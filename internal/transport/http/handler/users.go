package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-wallet-auth/internal/application/user"
	"github.com/go-wallet-auth/internal/transport/http/middleware"
)

// UserHandler serves user records to authorized callers.
type UserHandler struct {
	svc user.Service
}

func NewUserHandler(svc user.Service) *UserHandler { return &UserHandler{svc: svc} }

// Me returns the record of the token's subject.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	d, ok := middleware.DecisionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.svc.Get(r.Context(), d.PrincipalID)
	if err != nil {
		writeServiceError(w, r, err, defaultPolicy)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{Success: true, User: toSafeUser(u), RequestID: requestID(r)})
}

// Get is the admin lookup by user id.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Get(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, r, err, defaultPolicy)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{Success: true, User: toSafeUser(u), RequestID: requestID(r)})
}

// SetAdmin grants or revokes the admin flag of another user.
func (h *UserHandler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Admin *bool `json:"admin" validate:"required"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, err, defaultPolicy)
		return
	}
	u, err := h.svc.SetAdmin(r.Context(), chi.URLParam(r, "userId"), *req.Admin)
	if err != nil {
		writeServiceError(w, r, err, defaultPolicy)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{Success: true, User: toSafeUser(u), RequestID: requestID(r)})
}
