// internal/service/feed/saved.go

package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/feed"
	"wimbli/internal/domain/profile"
	"wimbli/internal/service/livesync"
)

// SavedSet is an immutable set of saved post ids
type SavedSet struct {
	ids map[string]bool
}

// NewSavedSet builds a set from ids
func NewSavedSet(ids []string) SavedSet {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return SavedSet{ids: m}
}

// Has reports whether id is saved
func (s SavedSet) Has(id string) bool {
	return s.ids[id]
}

// Toggled returns a copy with id flipped
func (s SavedSet) Toggled(id string) SavedSet {
	m := make(map[string]bool, len(s.ids)+1)
	for k := range s.ids {
		m[k] = true
	}
	if m[id] {
		delete(m, id)
	} else {
		m[id] = true
	}
	return SavedSet{ids: m}
}

// IDs returns the saved ids in sorted order
func (s SavedSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SavedPosts is one user's saved-post list, persisted on their profile
type SavedPosts struct {
	uid    string
	store  docstore.Store
	state  *livesync.Optimistic[SavedSet]
	logger *slog.Logger

	// toggles holds one Toggle at a time so each write matches the set it
	// flipped
	toggles sync.Mutex
}

// LoadSavedPosts reads uid's saved posts
func LoadSavedPosts(ctx context.Context, store docstore.Store, uid string, logger *slog.Logger) (*SavedPosts, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var ids []string
	doc, err := store.Get(ctx, profile.UsersCollection, uid)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("error loading saved posts: %w", err)
	default:
		ids = docstore.Strings(doc.Data, "savedPosts")
	}

	return &SavedPosts{
		uid:    uid,
		store:  store,
		state:  livesync.NewOptimistic(NewSavedSet(ids)),
		logger: logger.With("service", "saved_posts", "user", uid),
	}, nil
}

// Toggle flips whether postID is saved. The local set changes at once and
// reverts if the write fails. It returns the new saved state.
func (s *SavedPosts) Toggle(ctx context.Context, postID string) (bool, error) {
	s.toggles.Lock()
	defer s.toggles.Unlock()

	saving := !s.state.State().Has(postID)

	var transform docstore.Transform
	if saving {
		transform = docstore.ArrayUnion(postID)
	} else {
		transform = docstore.ArrayRemove(postID)
	}

	err := s.state.Run(ctx, livesync.Mutation[SavedSet]{
		Name:  "toggle_saved",
		Apply: func(cur SavedSet) SavedSet { return cur.Toggled(postID) },
		Issue: func(ctx context.Context) error {
			return s.store.Update(ctx, profile.UsersCollection, s.uid, map[string]interface{}{
				"savedPosts": transform,
			})
		},
	})
	if err != nil {
		s.logger.Warn("saved toggle reverted", "post", postID, "error", err)
		return !saving, fmt.Errorf("error updating saved posts: %w", err)
	}
	return saving, nil
}

// IsSaved reports the local saved state of a post
func (s *SavedPosts) IsSaved(postID string) bool {
	return s.state.State().Has(postID)
}

// IDs returns the saved post ids
func (s *SavedPosts) IDs() []string {
	return s.state.State().IDs()
}

// List reads the saved posts, skipping any that no longer exist, sorted by
// date
func (s *SavedPosts) List(ctx context.Context) ([]feed.Post, error) {
	var posts []feed.Post
	for _, id := range s.IDs() {
		doc, err := s.store.Get(ctx, feed.PostsCollection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error reading saved post %s: %w", id, err)
		}
		posts = append(posts, feed.PostFromDocument(*doc))
	}

	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].Date.Equal(posts[j].Date) {
			return posts[i].Date.Before(posts[j].Date)
		}
		return posts[i].ID < posts[j].ID
	})
	return posts, nil
}

// Changes signals whenever the saved set changes
func (s *SavedPosts) Changes() <-chan struct{} {
	return s.state.Changes()
}

// Close releases change notifications
func (s *SavedPosts) Close() {
	s.state.Close()
}
