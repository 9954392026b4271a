// internal/service/feed/posts.go

package feed

import (
	"context"
	"fmt"
	"log/slog"

	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/feed"
	"wimbli/internal/domain/geo"
	"wimbli/internal/domain/profile"
	"wimbli/internal/service/livesync"
)

// PostService writes event posts
type PostService struct {
	store    docstore.Store
	geo      geo.Service
	resolver *livesync.DisplayResolver
	logger   *slog.Logger
}

// NewPostService creates a new post service
func NewPostService(store docstore.Store, geoService geo.Service, resolver *livesync.DisplayResolver, logger *slog.Logger) *PostService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostService{
		store:    store,
		geo:      geoService,
		resolver: resolver,
		logger:   logger.With("service", "posts"),
	}
}

// Create validates and stores a new post by uid. The creator's display
// name and avatar are copied onto the post when their profile can be read.
func (s *PostService) Create(ctx context.Context, uid string, p feed.Post) (string, error) {
	fields, err := s.prepare(p)
	if err != nil {
		return "", err
	}

	fields["createdBy"] = uid
	if creator := s.resolver.Lookup(ctx, uid); creator != profile.UnknownDisplay {
		fields["creatorUsername"] = creator.Name
		if creator.Avatar != "" {
			fields["creatorProfilePic"] = creator.Avatar
		}
	}
	fields["createdAt"] = docstore.ServerTimestamp
	fields["updatedAt"] = docstore.ServerTimestamp

	id, err := s.store.Add(ctx, feed.PostsCollection, fields)
	if err != nil {
		return "", fmt.Errorf("error creating post: %w", err)
	}

	s.logger.Info("post created", "post", id, "user", uid, "category", p.Category)
	return id, nil
}

// Update replaces the editable fields of a post. Only its creator may.
func (s *PostService) Update(ctx context.Context, uid, id string, p feed.Post) error {
	fields, err := s.prepare(p)
	if err != nil {
		return err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.CreatedBy != uid {
		return feed.ErrForbidden
	}

	fields["updatedAt"] = docstore.ServerTimestamp
	if err := s.store.Update(ctx, feed.PostsCollection, id, fields); err != nil {
		return fmt.Errorf("error updating post: %w", err)
	}
	return nil
}

// Get reads one post, filling in the creator display when the post has none
func (s *PostService) Get(ctx context.Context, id string) (*feed.Post, error) {
	doc, err := s.store.Get(ctx, feed.PostsCollection, id)
	if err != nil {
		return nil, fmt.Errorf("error getting post: %w", err)
	}
	p := feed.PostFromDocument(*doc)
	if p.CreatorUsername == "" {
		creator := s.resolver.Lookup(ctx, p.CreatedBy)
		p.CreatorUsername = creator.Name
		p.CreatorProfilePic = creator.Avatar
	}
	return &p, nil
}

func (s *PostService) prepare(p feed.Post) (map[string]interface{}, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Coordinates != nil {
		if err := s.geo.Validate(*p.Coordinates); err != nil {
			return nil, err
		}
		p.Geohash = s.geo.Geohash(*p.Coordinates)
	}
	return p.Fields(), nil
}
