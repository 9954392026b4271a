// internal/server/handlers/chat.go

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"wimbli/internal/domain/chat"
	"wimbli/internal/domain/localstore"
	"wimbli/internal/domain/validation"
	chatService "wimbli/internal/service/chat"
	"wimbli/internal/service/livesync"
)

// ChatHandler handles chat joins, sends, likes and read state
type ChatHandler struct {
	groups *chatService.GroupService
	chats  *chatService.Service
	local  localstore.Factory
}

// NewChatHandler creates a new chat handler
func NewChatHandler(groups *chatService.GroupService, chats *chatService.Service, local localstore.Factory) *ChatHandler {
	return &ChatHandler{groups: groups, chats: chats, local: local}
}

func (h *ChatHandler) reads(r *http.Request) *livesync.ReadTracker {
	return livesync.NewReadTracker(h.local.ForDevice(DeviceFrom(r.Context())), nil)
}

// JoinChat joins the chat for an event, by title or by post id
func (h *ChatHandler) JoinChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string `json:"title"`
		PostID string `json:"postId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, _ := UserFrom(r.Context())
	var (
		id  string
		err error
	)
	switch {
	case req.PostID != "":
		id, err = h.groups.JoinForPost(r.Context(), req.PostID, user.ID)
	case req.Title != "":
		id, err = h.groups.JoinChat(r.Context(), req.Title, user.ID)
	default:
		err = validation.New("title", "title or postId is required")
	}
	if err != nil {
		respondWithServiceError(w, "Failed to join chat", err)
		return
	}

	g, err := h.groups.Get(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, "Failed to get chat", err)
		return
	}
	respondWithJSON(w, http.StatusOK, g)
}

// SendMessage posts a message to a group
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text  string      `json:"text"`
		Reply *chat.Reply `json:"reply,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	groupID := chi.URLParam(r, "id")
	user, _ := UserFrom(r.Context())
	id, err := h.chats.Send(r.Context(), groupID, user.ID, req.Text, req.Reply)
	if err != nil {
		respondWithServiceError(w, "Failed to send message", err)
		return
	}

	if err := h.reads(r).MarkSeen(r.Context(), groupID); err != nil {
		respondWithServiceError(w, "Failed to mark chat seen", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ToggleLike likes or unlikes a message
func (h *ChatHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	liked, err := h.chats.ToggleLike(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "mid"), user.ID)
	if err != nil {
		respondWithServiceError(w, "Failed to toggle like", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

// MarkSeen records that the device has seen a group up to now
func (h *ChatHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	if err := h.reads(r).MarkSeen(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithServiceError(w, "Failed to mark chat seen", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
