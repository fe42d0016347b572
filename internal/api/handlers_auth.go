package api

import (
	"encoding/json"
	"net/http"

	respond "github.com/mindmark/mindmark-server/internal/api/respond"
	"github.com/mindmark/mindmark-server/internal/auth"
	"github.com/mindmark/mindmark-server/internal/services"
)

// AuthHandler is the HTTP transport for registration and token issuance.
type AuthHandler struct {
	users  *services.UserService
	issuer *auth.TokenIssuer
}

func NewAuthHandler(users *services.UserService, issuer *auth.TokenIssuer) *AuthHandler {
	return &AuthHandler{users: users, issuer: issuer}
}

// Register POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	u, err := h.users.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, u)
}

// Token POST /api/token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	pair, err := h.issuer.Issue(r.Context(), req.Username, req.Password)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, pair)
}

// Refresh POST /api/token/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	access, err := h.issuer.Refresh(r.Context(), req.Refresh)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"access": access})
}
