// internal/service/livesync/resolver.go

package livesync

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/profile"
	"wimbli/internal/observability"
)

// DefaultFanOut bounds concurrent profile reads in one resolution pass
const DefaultFanOut = 8

// DisplayRef is one item's owner plus whatever display it already embeds
type DisplayRef struct {
	OwnerID  string
	Embedded profile.Display
}

// DisplayResolver fills in owner names and avatars for items that do not
// embed them, reading each distinct owner's profile at most once per pass.
type DisplayResolver struct {
	store  docstore.Store
	limit  int
	logger *slog.Logger
}

// NewDisplayResolver creates a new resolver. A limit below 1 uses
// DefaultFanOut.
func NewDisplayResolver(store docstore.Store, limit int, logger *slog.Logger) *DisplayResolver {
	if limit < 1 {
		limit = DefaultFanOut
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DisplayResolver{
		store:  store,
		limit:  limit,
		logger: logger.With("component", "display_resolver"),
	}
}

// Resolve returns one display per ref, in order. It waits for every read to
// finish; owners that cannot be read resolve to profile.UnknownDisplay. The
// only error is ctx's.
func (r *DisplayResolver) Resolve(ctx context.Context, refs []DisplayRef) ([]profile.Display, error) {
	var owners []string
	seen := make(map[string]bool)
	for _, ref := range refs {
		if ref.Embedded.Name == "" && !seen[ref.OwnerID] {
			seen[ref.OwnerID] = true
			owners = append(owners, ref.OwnerID)
		}
	}

	resolved := make([]profile.Display, len(owners))
	if len(owners) > 0 {
		g := new(errgroup.Group)
		g.SetLimit(r.limit)

		for i, owner := range owners {
			i, owner := i, owner
			g.Go(func() error {
				resolved[i] = r.Lookup(ctx, owner)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	byOwner := make(map[string]profile.Display, len(owners))
	for i, owner := range owners {
		byOwner[owner] = resolved[i]
	}

	out := make([]profile.Display, len(refs))
	for i, ref := range refs {
		if ref.Embedded.Name != "" {
			out[i] = ref.Embedded
			continue
		}
		out[i] = byOwner[ref.OwnerID]
	}
	return out, nil
}

// Lookup reads one owner's display, falling back to profile.UnknownDisplay
func (r *DisplayResolver) Lookup(ctx context.Context, ownerID string) profile.Display {
	if ownerID == "" {
		observability.ResolverFallbacks.Inc()
		return profile.UnknownDisplay
	}

	observability.ResolverReads.Inc()
	doc, err := r.store.Get(ctx, profile.UsersCollection, ownerID)
	if err != nil {
		observability.ResolverFallbacks.Inc()
		r.logger.Debug("owner profile unavailable", "owner", ownerID, "error", err)
		return profile.UnknownDisplay
	}

	name := docstore.String(doc.Data, "username")
	if name == "" {
		observability.ResolverFallbacks.Inc()
		return profile.UnknownDisplay
	}
	return profile.Display{
		Name:   name,
		Avatar: docstore.String(doc.Data, "profilePicture"),
	}
}
