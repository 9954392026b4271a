// internal/service/profile/service.go

package profile

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"wimbli/internal/domain/blob"
	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/feed"
	"wimbli/internal/domain/profile"
	"wimbli/internal/domain/validation"
)

const (
	// MaxPictureBytes caps profile picture uploads
	MaxPictureBytes = 5 << 20

	maxUsernameLength = 30
	maxBioLength      = 300
)

// Service manages user profiles
type Service struct {
	store  docstore.Store
	blobs  blob.Store
	logger *slog.Logger
}

// NewService creates a new profile service
func NewService(store docstore.Store, blobs blob.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		blobs:  blobs,
		logger: logger.With("service", "profile"),
	}
}

// CreateMinimal writes the profile created at sign-up
func (s *Service) CreateMinimal(ctx context.Context, uid, username string) error {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return err
	}

	err := s.store.Set(ctx, profile.UsersCollection, uid, map[string]interface{}{
		"username":   username,
		"bio":        "",
		"interests":  []interface{}{},
		"savedPosts": []interface{}{},
		"createdAt":  docstore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("error creating profile: %w", err)
	}

	s.logger.Info("profile created", "user", uid)
	return nil
}

// Get reads a profile
func (s *Service) Get(ctx context.Context, uid string) (*profile.Profile, error) {
	doc, err := s.store.Get(ctx, profile.UsersCollection, uid)
	if err != nil {
		return nil, fmt.Errorf("error getting profile: %w", err)
	}
	p := profile.FromDocument(*doc)
	return &p, nil
}

// Update changes the username and bio
func (s *Service) Update(ctx context.Context, uid, username, bio string) error {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return err
	}
	if len(bio) > maxBioLength {
		return validation.New("bio", fmt.Sprintf("must be at most %d characters", maxBioLength))
	}

	err := s.store.Update(ctx, profile.UsersCollection, uid, map[string]interface{}{
		"username":  username,
		"bio":       strings.TrimSpace(bio),
		"updatedAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("error updating profile: %w", err)
	}
	return nil
}

// SetInterests replaces the user's interest categories. Every entry must be
// in the interest vocabulary; duplicates are dropped.
func (s *Service) SetInterests(ctx context.Context, uid string, interests []string) error {
	seen := make(map[string]bool, len(interests))
	clean := make([]interface{}, 0, len(interests))
	for _, i := range interests {
		if !feed.IsInterest(i) {
			return validation.New("interests", fmt.Sprintf("unknown interest %q", i))
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		clean = append(clean, i)
	}

	err := s.store.Update(ctx, profile.UsersCollection, uid, map[string]interface{}{
		"interests": clean,
	})
	if err != nil {
		return fmt.Errorf("error setting interests: %w", err)
	}
	return nil
}

// UploadPicture stores a new profile picture and points the profile at it
func (s *Service) UploadPicture(ctx context.Context, uid string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", validation.New("picture", "is empty")
	}
	if len(data) > MaxPictureBytes {
		return "", validation.New("picture", "is too large")
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", validation.New("picture", "must be an image")
	}

	path := fmt.Sprintf("profile_pictures/%s/%s", uid, uuid.New().String())
	url, err := s.blobs.Upload(ctx, path, contentType, data)
	if err != nil {
		return "", fmt.Errorf("error uploading picture: %w", err)
	}

	err = s.store.Update(ctx, profile.UsersCollection, uid, map[string]interface{}{
		"profilePicture": url,
	})
	if err != nil {
		return "", fmt.Errorf("error saving picture: %w", err)
	}

	s.logger.Info("profile picture updated", "user", uid, "path", path)
	return url, nil
}

// Delete removes the profile. Posts and messages keep their denormalized
// copies and resolve to the unknown display from then on.
func (s *Service) Delete(ctx context.Context, uid string) error {
	if err := s.store.Delete(ctx, profile.UsersCollection, uid); err != nil {
		return fmt.Errorf("error deleting profile: %w", err)
	}
	s.logger.Info("profile deleted", "user", uid)
	return nil
}

func validateUsername(username string) error {
	if err := validation.Required("username", username); err != nil {
		return err
	}
	if len(username) > maxUsernameLength {
		return validation.New("username", fmt.Sprintf("must be at most %d characters", maxUsernameLength))
	}
	return nil
}
