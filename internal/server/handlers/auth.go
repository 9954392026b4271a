// internal/server/handlers/auth.go

package handlers

import (
	"context"
	"net/http"

	"wimbli/internal/domain/auth"
	"wimbli/internal/service/identity"
)

// AuthService is the authentication capability plus password reset completion
type AuthService interface {
	auth.Provider
	CompleteReset(ctx context.Context, email, token, password string) error
}

// AuthHandler handles sign-up, sign-in and account requests
type AuthHandler struct {
	service AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// SignUp creates an account
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
		Username        string `json:"username"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := identity.ConfirmPassword(req.Password, req.ConfirmPassword); err != nil {
		respondWithServiceError(w, "Failed to sign up", err)
		return
	}

	session, err := h.service.SignUp(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		respondWithServiceError(w, "Failed to sign up", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, session)
}

// SignIn issues a session
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	session, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, "Failed to sign in", err)
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

// SignOut revokes the request's session
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SignOut(r.Context(), tokenFrom(r.Context())); err != nil {
		respondWithServiceError(w, "Failed to sign out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reauthenticate confirms the password and returns a fresh session
func (h *AuthHandler) Reauthenticate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	session, err := h.service.Reauthenticate(r.Context(), tokenFrom(r.Context()), req.Password)
	if err != nil {
		respondWithServiceError(w, "Failed to reauthenticate", err)
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

// DeleteAccount removes the signed-in account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAccount(r.Context(), tokenFrom(r.Context())); err != nil {
		respondWithServiceError(w, "Failed to delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword starts a password reset
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var err error
	if req.Token == "" {
		err = h.service.ResetPassword(r.Context(), req.Email)
	} else {
		err = h.service.CompleteReset(r.Context(), req.Email, req.Token, req.Password)
	}
	if err != nil {
		respondWithServiceError(w, "Failed to reset password", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
