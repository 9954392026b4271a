// internal/domain/profile/model.go

package profile

import (
	"wimbli/internal/domain/docstore"
)

// UsersCollection holds one profile per authenticated user
const UsersCollection = "users"

// Profile is a user's public profile plus their saved posts
type Profile struct {
	ID             string   `json:"id"`
	Username       string   `json:"username"`
	Bio            string   `json:"bio"`
	Interests      []string `json:"interests"`
	ProfilePicture string   `json:"profilePicture,omitempty"`
	SavedPosts     []string `json:"savedPosts"`
}

// FromDocument decodes a stored profile
func FromDocument(doc docstore.Document) Profile {
	p := Profile{
		ID:             doc.ID,
		Username:       docstore.String(doc.Data, "username"),
		Bio:            docstore.String(doc.Data, "bio"),
		Interests:      docstore.Strings(doc.Data, "interests"),
		ProfilePicture: docstore.String(doc.Data, "profilePicture"),
		SavedPosts:     docstore.Strings(doc.Data, "savedPosts"),
	}
	if p.Interests == nil {
		p.Interests = []string{}
	}
	if p.SavedPosts == nil {
		p.SavedPosts = []string{}
	}
	return p
}

// Display is the name and avatar shown next to content a user owns
type Display struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// UnknownDisplay is shown when the owner's profile cannot be read
var UnknownDisplay = Display{Name: "Unknown"}
