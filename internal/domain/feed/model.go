// internal/domain/feed/model.go

package feed

import (
	"errors"
	"strings"
	"time"

	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/geo"
	"wimbli/internal/domain/validation"
)

// PostsCollection holds every event post
const PostsCollection = "posts"

// ErrForbidden is returned when a user edits a post they did not create
var ErrForbidden = errors.New("only the creator can modify this post")

// Interests is the fixed category vocabulary shared by posts and profiles
var Interests = []string{
	"Art",
	"Music",
	"Sports",
	"Food & Drink",
	"Tech",
	"Outdoors",
	"Gaming",
	"Fitness",
	"Education",
	"Networking",
	"Nightlife",
	"Community",
	"Wellness",
	"Theater",
	"Film",
}

// IsInterest reports whether category belongs to the vocabulary
func IsInterest(category string) bool {
	for _, i := range Interests {
		if i == category {
			return true
		}
	}
	return false
}

// FeeTier buckets posts by entry fee
type FeeTier string

const (
	FeeAny     FeeTier = "any"
	FeeFree    FeeTier = "free"
	FeeUnder20 FeeTier = "under20"
	FeeUnder50 FeeTier = "under50"
	FeeOver50  FeeTier = "over50"
)

// Matches reports whether a fee falls into the tier. Unknown tiers match
// everything.
func (t FeeTier) Matches(fee float64) bool {
	switch t {
	case FeeFree:
		return fee == 0
	case FeeUnder20:
		return fee > 0 && fee <= 20
	case FeeUnder50:
		return fee > 20 && fee <= 50
	case FeeOver50:
		return fee > 50
	default:
		return true
	}
}

// Post is an event listing
type Post struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	Category          string        `json:"category"`
	Location          string        `json:"location"`
	Date              time.Time     `json:"date"`
	Fee               float64       `json:"fee"`
	CreatedBy         string        `json:"createdBy"`
	Coordinates       *geo.Location `json:"coordinates,omitempty"`
	Geohash           string        `json:"geohash,omitempty"`
	CreatorUsername   string        `json:"creatorUsername,omitempty"`
	CreatorProfilePic string        `json:"creatorProfilePic,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// Validate checks the fields a user must provide
func (p Post) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"title", p.Title},
		{"description", p.Description},
		{"category", p.Category},
		{"location", p.Location},
	} {
		if err := validation.Required(f.name, f.value); err != nil {
			return err
		}
	}
	if p.Date.IsZero() {
		return validation.New("date", "is required")
	}
	if p.Fee < 0 {
		return validation.New("fee", "must not be negative")
	}
	if !IsInterest(p.Category) {
		return validation.New("category", "must be one of the interest categories")
	}
	return nil
}

// Fields returns the stored representation of the user-editable fields
func (p Post) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"title":       strings.TrimSpace(p.Title),
		"description": strings.TrimSpace(p.Description),
		"category":    p.Category,
		"location":    strings.TrimSpace(p.Location),
		"date":        p.Date.UTC(),
		"fee":         p.Fee,
	}
	if p.Coordinates != nil {
		fields["coordinates"] = map[string]interface{}{
			"latitude":  p.Coordinates.Latitude,
			"longitude": p.Coordinates.Longitude,
		}
	}
	if p.Geohash != "" {
		fields["geohash"] = p.Geohash
	}
	return fields
}

// PostFromDocument decodes a stored post
func PostFromDocument(doc docstore.Document) Post {
	p := Post{
		ID:                doc.ID,
		Title:             docstore.String(doc.Data, "title"),
		Description:       docstore.String(doc.Data, "description"),
		Category:          docstore.String(doc.Data, "category"),
		Location:          docstore.String(doc.Data, "location"),
		Date:              docstore.Time(doc.Data, "date"),
		Fee:               docstore.Float(doc.Data, "fee"),
		CreatedBy:         docstore.String(doc.Data, "createdBy"),
		Geohash:           docstore.String(doc.Data, "geohash"),
		CreatorUsername:   docstore.String(doc.Data, "creatorUsername"),
		CreatorProfilePic: docstore.String(doc.Data, "creatorProfilePic"),
		CreatedAt:         docstore.Time(doc.Data, "createdAt"),
		UpdatedAt:         docstore.Time(doc.Data, "updatedAt"),
	}
	if c := docstore.Map(doc.Data, "coordinates"); c != nil {
		p.Coordinates = &geo.Location{
			Latitude:  docstore.Float(c, "latitude"),
			Longitude: docstore.Float(c, "longitude"),
		}
	}
	return p
}
