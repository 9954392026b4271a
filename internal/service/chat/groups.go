// internal/service/chat/groups.go

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"wimbli/internal/domain/chat"
	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/feed"
	"wimbli/internal/domain/validation"
	"wimbli/internal/service/livesync"
)

// GroupService creates and joins event chats
type GroupService struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewGroupService creates a new group service
func NewGroupService(store docstore.Store, logger *slog.Logger) *GroupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupService{store: store, logger: logger.With("service", "groups")}
}

// JoinChat adds uid to the chat for an event title, creating the chat on
// first join. Joining twice leaves a single membership.
//
// Two first joins racing can each create a group for the same title; the
// store has no cross-document transactions to prevent it.
func (s *GroupService) JoinChat(ctx context.Context, eventTitle, uid string) (string, error) {
	title := strings.TrimSpace(eventTitle)
	if err := validation.Required("title", title); err != nil {
		return "", err
	}

	existing, err := s.store.Query(ctx, docstore.Collection(chat.GroupsCollection).
		Where("title", docstore.OpEqual, title).
		WithLimit(1))
	if err != nil {
		return "", fmt.Errorf("error finding chat: %w", err)
	}

	if len(existing) > 0 {
		id := existing[0].ID
		err := s.store.Update(ctx, chat.GroupsCollection, id, map[string]interface{}{
			"members": docstore.ArrayUnion(uid),
		})
		if err != nil {
			return "", fmt.Errorf("error joining chat: %w", err)
		}
		s.logger.Debug("joined chat", "group", id, "user", uid)
		return id, nil
	}

	id, err := s.store.Add(ctx, chat.GroupsCollection, map[string]interface{}{
		"title":     title,
		"members":   []string{uid},
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("error creating chat: %w", err)
	}

	s.logger.Info("chat created", "group", id, "title", title, "user", uid)
	return id, nil
}

// JoinForPost joins the chat named after a post's title
func (s *GroupService) JoinForPost(ctx context.Context, postID, uid string) (string, error) {
	doc, err := s.store.Get(ctx, feed.PostsCollection, postID)
	if err != nil {
		return "", fmt.Errorf("error getting post: %w", err)
	}
	return s.JoinChat(ctx, docstore.String(doc.Data, "title"), uid)
}

// Get reads one group
func (s *GroupService) Get(ctx context.Context, groupID string) (*chat.Group, error) {
	doc, err := s.store.Get(ctx, chat.GroupsCollection, groupID)
	if err != nil {
		return nil, fmt.Errorf("error getting chat: %w", err)
	}
	g := chat.GroupFromDocument(*doc)
	return &g, nil
}

// GroupList is the live list of chats a user belongs to, newest activity
// first, each flagged unread against the device's read state
type GroupList struct {
	view   *livesync.View[chat.GroupSummary]
	reads  *livesync.ReadTracker
	logger *slog.Logger
}

func openGroupList(ctx context.Context, store docstore.Store, reads *livesync.ReadTracker, uid string, logger *slog.Logger) (*GroupList, error) {
	if logger == nil {
		logger = slog.Default()
	}
	gl := &GroupList{reads: reads, logger: logger.With("user", uid)}

	gl.view = livesync.NewView(store, livesync.ViewConfig[chat.GroupSummary]{
		Name: "groups",
		Decode: func(doc docstore.Document) chat.GroupSummary {
			return chat.GroupSummary{Group: chat.GroupFromDocument(doc)}
		},
		ID:      func(g chat.GroupSummary) string { return g.ID },
		Resolve: gl.resolveUnread,
		Less:    func(a, b chat.GroupSummary) bool { return a.LastUpdated.After(b.LastUpdated) },
		Logger:  logger,
	})

	q := docstore.Collection(chat.GroupsCollection).
		Where("members", docstore.OpArrayContains, uid).
		OrderBy("lastUpdated", docstore.Descending)
	if err := gl.view.Open(ctx, q); err != nil {
		gl.view.Close()
		return nil, err
	}
	return gl, nil
}

func (gl *GroupList) resolveUnread(ctx context.Context, groups []chat.GroupSummary) ([]chat.GroupSummary, error) {
	out := make([]chat.GroupSummary, len(groups))
	for i, g := range groups {
		unread, err := gl.reads.IsUnread(ctx, g.ID, g.LastUpdated)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			gl.logger.Debug("read state unavailable", "group", g.ID, "error", err)
			unread = false
		}
		g.Unread = unread
		out[i] = g
	}
	return out, nil
}

// Refocus re-evaluates unread flags, for when the list is shown again after
// the user visited a chat
func (gl *GroupList) Refocus() {
	gl.view.Reresolve()
}

// State returns the published list
func (gl *GroupList) State() livesync.State[chat.GroupSummary] {
	return gl.view.State()
}

// Changes signals whenever the list is republished
func (gl *GroupList) Changes() <-chan struct{} {
	return gl.view.Changes()
}

// Close ends the session
func (gl *GroupList) Close() {
	gl.view.Close()
}
