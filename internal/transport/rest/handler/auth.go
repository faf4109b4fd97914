package handler

import (
	"net/http"

	"coursecontrol/internal/apperr"
	"coursecontrol/internal/service"
)

// AuthHandler serves login.
type AuthHandler struct {
	authSvc *service.AuthService
}

func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	resp, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if err == service.ErrInvalidCredentials {
			respondError(w, apperr.New("INVALID_CREDENTIALS", err.Error(), http.StatusUnauthorized))
			return
		}
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
