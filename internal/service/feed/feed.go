// internal/service/feed/feed.go

package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/feed"
	"wimbli/internal/domain/geo"
	"wimbli/internal/domain/profile"
	"wimbli/internal/service/livesync"
)

const (
	predicateCategory = "category"
	predicateSearch   = "search"
	predicateFee      = "fee"
	predicateDistance = "distance"
)

// Criteria are the local filters applied to the feed
type Criteria struct {
	Categories    []string      `json:"categories"`
	Search        string        `json:"search"`
	Fee           feed.FeeTier  `json:"fee"`
	Origin        *geo.Location `json:"origin,omitempty"`
	MaxDistanceKm float64       `json:"maxDistanceKm,omitempty"`

	// UseInterests filters by the user's interests when Categories is empty
	UseInterests bool `json:"useInterests"`
}

// DefaultCriteria shows posts in the user's interest categories
func DefaultCriteria() Criteria {
	return Criteria{Fee: feed.FeeAny, UseInterests: true}
}

// FeedQuery is the live query behind every feed session
func FeedQuery() docstore.Query {
	return docstore.Collection(feed.PostsCollection).OrderBy("date", docstore.Ascending)
}

// Session is one user's live event feed
type Session struct {
	svc  *Service
	uid  string
	view *livesync.View[feed.Post]

	mu        sync.Mutex
	criteria  Criteria
	interests []string
}

// Service opens feed sessions
type Service struct {
	store    docstore.Store
	resolver *livesync.DisplayResolver
	logger   *slog.Logger
}

// NewService creates a new feed service
func NewService(store docstore.Store, resolver *livesync.DisplayResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		logger:   logger.With("service", "feed"),
	}
}

// Open starts a feed session for uid with the given criteria
func (s *Service) Open(ctx context.Context, uid string, criteria Criteria) (*Session, error) {
	interests, err := s.loadInterests(ctx, uid)
	if err != nil {
		return nil, err
	}

	view := livesync.NewView(s.store, livesync.ViewConfig[feed.Post]{
		Name:    "feed",
		Decode:  feed.PostFromDocument,
		ID:      func(p feed.Post) string { return p.ID },
		Resolve: s.resolveCreators,
		Less:    func(a, b feed.Post) bool { return a.Date.Before(b.Date) },
		Logger:  s.logger,
	})

	sess := &Session{svc: s, uid: uid, view: view, interests: interests}
	sess.SetCriteria(criteria)

	if err := view.Open(ctx, FeedQuery()); err != nil {
		view.Close()
		return nil, err
	}
	return sess, nil
}

func (s *Service) loadInterests(ctx context.Context, uid string) ([]string, error) {
	doc, err := s.store.Get(ctx, profile.UsersCollection, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading interests: %w", err)
	}
	return docstore.Strings(doc.Data, "interests"), nil
}

func (s *Service) resolveCreators(ctx context.Context, posts []feed.Post) ([]feed.Post, error) {
	refs := make([]livesync.DisplayRef, len(posts))
	for i, p := range posts {
		refs[i] = livesync.DisplayRef{
			OwnerID:  p.CreatedBy,
			Embedded: profile.Display{Name: p.CreatorUsername, Avatar: p.CreatorProfilePic},
		}
	}

	displays, err := s.resolver.Resolve(ctx, refs)
	if err != nil {
		return nil, err
	}

	out := make([]feed.Post, len(posts))
	for i, p := range posts {
		p.CreatorUsername = displays[i].Name
		p.CreatorProfilePic = displays[i].Avatar
		out[i] = p
	}
	return out, nil
}

// Saved loads uid's saved posts, the set the feed's save toggle writes to
func (s *Service) Saved(ctx context.Context, uid string) (*SavedPosts, error) {
	return LoadSavedPosts(ctx, s.store, uid, s.logger)
}

// SetCriteria replaces the feed's filters. The retained snapshot is
// re-filtered once; the live query is unchanged.
func (s *Session) SetCriteria(c Criteria) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria = c
	s.applyLocked()
}

// Refresh reloads the user's interests and re-applies the current criteria,
// for when the profile may have changed while the feed was open
func (s *Session) Refresh(ctx context.Context) error {
	interests, err := s.svc.loadInterests(ctx, s.uid)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.interests = interests
	s.applyLocked()
	return nil
}

// applyLocked must be called with mu held
func (s *Session) applyLocked() {
	c := s.criteria
	predicates := map[string]func(feed.Post) bool{
		predicateDistance: DistancePredicate(c.Origin, c.MaxDistanceKm),
	}

	categories := c.Categories
	if len(categories) == 0 && c.UseInterests {
		categories = s.interests
	}
	if len(categories) > 0 {
		predicates[predicateCategory] = CategoryPredicate(categories)
	}
	if strings.TrimSpace(c.Search) != "" {
		predicates[predicateSearch] = SearchPredicate(c.Search)
	}
	if c.Fee != "" && c.Fee != feed.FeeAny {
		predicates[predicateFee] = FeePredicate(c.Fee)
	}

	s.view.SetPredicates(predicates)
}

// State returns the published feed
func (s *Session) State() livesync.State[feed.Post] {
	return s.view.State()
}

// Changes signals whenever the feed is republished
func (s *Session) Changes() <-chan struct{} {
	return s.view.Changes()
}

// Close ends the session
func (s *Session) Close() {
	s.view.Close()
}

// CategoryPredicate keeps posts whose category is in the set
func CategoryPredicate(categories []string) func(feed.Post) bool {
	set := make(map[string]bool, len(categories))
	for _, c := range categories {
		set[c] = true
	}
	return func(p feed.Post) bool {
		return set[p.Category]
	}
}

// SearchPredicate keeps posts mentioning term in their title, description,
// location or category, ignoring case
func SearchPredicate(term string) func(feed.Post) bool {
	needle := strings.ToLower(strings.TrimSpace(term))
	return func(p feed.Post) bool {
		for _, field := range []string{p.Title, p.Description, p.Location, p.Category} {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
		return false
	}
}

// FeePredicate keeps posts in the fee tier
func FeePredicate(tier feed.FeeTier) func(feed.Post) bool {
	return func(p feed.Post) bool {
		return tier.Matches(p.Fee)
	}
}

// DistancePredicate keeps every post. Proximity filtering is not enabled;
// the origin and radius are accepted so clients can send them already.
func DistancePredicate(origin *geo.Location, maxKm float64) func(feed.Post) bool {
	return func(feed.Post) bool {
		return true
	}
}
