// internal/server/handlers/profile.go

package handlers

import (
	"io"
	"net/http"

	profileService "wimbli/internal/service/profile"
)

// ProfileHandler handles the signed-in user's profile
type ProfileHandler struct {
	profiles *profileService.Service
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles *profileService.Service) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GetProfile returns the profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	p, err := h.profiles.Get(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, "Failed to get profile", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

// UpdateProfile changes the username and bio
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Bio      string `json:"bio"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, _ := UserFrom(r.Context())
	if err := h.profiles.Update(r.Context(), user.ID, req.Username, req.Bio); err != nil {
		respondWithServiceError(w, "Failed to update profile", err)
		return
	}
	h.GetProfile(w, r)
}

// SetInterests replaces the interest categories
func (h *ProfileHandler) SetInterests(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Interests []string `json:"interests"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, _ := UserFrom(r.Context())
	if err := h.profiles.SetInterests(r.Context(), user.ID, req.Interests); err != nil {
		respondWithServiceError(w, "Failed to set interests", err)
		return
	}
	h.GetProfile(w, r)
}

// UploadPicture stores the multipart "file" as the profile picture
func (h *ProfileHandler) UploadPicture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, profileService.MaxPictureBytes+1<<20)
	if err := r.ParseMultipartForm(profileService.MaxPictureBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid upload", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Missing file", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, profileService.MaxPictureBytes+1))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read upload", err)
		return
	}

	user, _ := UserFrom(r.Context())
	url, err := h.profiles.UploadPicture(r.Context(), user.ID, data, header.Header.Get("Content-Type"))
	if err != nil {
		respondWithServiceError(w, "Failed to upload picture", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"profilePicture": url})
}
