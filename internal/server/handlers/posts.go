// internal/server/handlers/posts.go

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/feed"
	feedService "wimbli/internal/service/feed"
)

// PostHandler handles post writes and saved posts
type PostHandler struct {
	posts  *feedService.PostService
	store  docstore.Store
	logger *slog.Logger
}

// NewPostHandler creates a new post handler
func NewPostHandler(posts *feedService.PostService, store docstore.Store, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, store: store, logger: logger}
}

// CreatePost publishes a new event
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var p feed.Post
	if err := decodeJSON(r, &p); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, _ := UserFrom(r.Context())
	id, err := h.posts.Create(r.Context(), user.ID, p)
	if err != nil {
		respondWithServiceError(w, "Failed to create post", err)
		return
	}

	created, err := h.posts.Get(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, "Failed to get post", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

// UpdatePost edits an event the user created
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var p feed.Post
	if err := decodeJSON(r, &p); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id := chi.URLParam(r, "id")
	user, _ := UserFrom(r.Context())
	if err := h.posts.Update(r.Context(), user.ID, id, p); err != nil {
		respondWithServiceError(w, "Failed to update post", err)
		return
	}
	h.GetPost(w, r)
}

// GetPost returns one event
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.posts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, "Failed to get post", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

// ListSaved returns the user's saved posts
func (h *PostHandler) ListSaved(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	saved, err := feedService.LoadSavedPosts(r.Context(), h.store, user.ID, h.logger)
	if err != nil {
		respondWithServiceError(w, "Failed to load saved posts", err)
		return
	}
	defer saved.Close()

	posts, err := saved.List(r.Context())
	if err != nil {
		respondWithServiceError(w, "Failed to list saved posts", err)
		return
	}
	if posts == nil {
		posts = []feed.Post{}
	}
	respondWithJSON(w, http.StatusOK, posts)
}

// ToggleSaved saves or unsaves a post
func (h *PostHandler) ToggleSaved(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	saved, err := feedService.LoadSavedPosts(r.Context(), h.store, user.ID, h.logger)
	if err != nil {
		respondWithServiceError(w, "Failed to load saved posts", err)
		return
	}
	defer saved.Close()

	on, err := saved.Toggle(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		respondWithServiceError(w, "Failed to toggle saved post", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"saved": on})
}
