// internal/server/handlers/response.go

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"wimbli/internal/domain/auth"
	"wimbli/internal/domain/chat"
	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/feed"
	"wimbli/internal/domain/geo"
	"wimbli/internal/domain/validation"
)

type errorResponse struct {
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	Field       string `json:"field,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	if err != nil && code >= 500 {
		slog.Error("HTTP error", "code", code, "message", message, "error", err)
	}
	respondWithJSON(w, code, errorResponse{Error: message})
}

// respondWithServiceError maps a service error to its status code
func respondWithServiceError(w http.ResponseWriter, message string, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
		return
	}

	var aerr *auth.Error
	if errors.As(err, &aerr) {
		respondWithJSON(w, authStatus(aerr.Code), errorResponse{
			Error:       aerr.Error(),
			Code:        string(aerr.Code),
			Remediation: aerr.Remediation(),
		})
		return
	}

	switch {
	case errors.Is(err, docstore.ErrNotFound):
		respondWithError(w, http.StatusNotFound, message+": not found", nil)
	case errors.Is(err, feed.ErrForbidden), errors.Is(err, chat.ErrNotMember):
		respondWithError(w, http.StatusForbidden, message+": forbidden", nil)
	case errors.Is(err, chat.ErrEmptyMessage):
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, geo.ErrInvalidCoordinates):
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		respondWithError(w, http.StatusInternalServerError, message, err)
	}
}

func authStatus(code auth.Code) int {
	switch code {
	case auth.CodeWrongPassword, auth.CodeInvalidToken:
		return http.StatusUnauthorized
	case auth.CodeUserNotFound:
		return http.StatusNotFound
	case auth.CodeEmailInUse:
		return http.StatusConflict
	case auth.CodeRequiresRecentLogin:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
