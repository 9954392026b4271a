// internal/domain/chat/model.go

package chat

import (
	"errors"
	"time"

	"wimbli/internal/domain/docstore"
)

// GroupsCollection holds every event chat
const GroupsCollection = "groups"

var (
	// ErrEmptyMessage is returned when sending blank text
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrNotMember is returned when a user acts in a chat they have not joined
	ErrNotMember = errors.New("not a member of this chat")
)

// MessagesCollection returns the message sub-collection of a group
func MessagesCollection(groupID string) string {
	return docstore.SubCollection(GroupsCollection, groupID, "messages")
}

// Group is a chat room scoped to one event title. Members only ever grow.
type Group struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Members     []string  `json:"members"`
	LastMessage string    `json:"lastMessage,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasMember reports whether uid has joined the group
func (g Group) HasMember(uid string) bool {
	for _, id := range g.Members {
		if id == uid {
			return true
		}
	}
	return false
}

// GroupSummary is a group as shown in the user's chat list
type GroupSummary struct {
	Group
	Unread bool `json:"unread"`
}

// GroupFromDocument decodes a stored group
func GroupFromDocument(doc docstore.Document) Group {
	return Group{
		ID:          doc.ID,
		Title:       docstore.String(doc.Data, "title"),
		Members:     docstore.Strings(doc.Data, "members"),
		LastMessage: docstore.String(doc.Data, "lastMessage"),
		LastUpdated: docstore.Time(doc.Data, "lastUpdated"),
		CreatedAt:   docstore.Time(doc.Data, "createdAt"),
	}
}

// Reply is the quoted context of a message being answered
type Reply struct {
	Text       string `json:"text"`
	SenderName string `json:"senderName"`
}

// Message is one chat message. Text is immutable; only LikedBy changes.
type Message struct {
	ID                 string    `json:"id"`
	Text               string    `json:"text"`
	SenderID           string    `json:"senderId"`
	Timestamp          time.Time `json:"timestamp"`
	SenderName         string    `json:"senderName,omitempty"`
	SenderAvatar       string    `json:"senderAvatar,omitempty"`
	ReplyToMessageText string    `json:"replyToMessageText,omitempty"`
	ReplyToSenderName  string    `json:"replyToSenderName,omitempty"`
	LikedBy            []string  `json:"likedBy"`
}

// LikedByUser reports whether uid has liked the message
func (m Message) LikedByUser(uid string) bool {
	for _, id := range m.LikedBy {
		if id == uid {
			return true
		}
	}
	return false
}

// ToggleLike returns the like set after uid toggles their like
func (m Message) ToggleLike(uid string) []string {
	if !m.LikedByUser(uid) {
		out := make([]string, len(m.LikedBy), len(m.LikedBy)+1)
		copy(out, m.LikedBy)
		return append(out, uid)
	}
	out := make([]string, 0, len(m.LikedBy))
	for _, id := range m.LikedBy {
		if id != uid {
			out = append(out, id)
		}
	}
	return out
}

// Fields returns the stored representation of a new message
func (m Message) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"text":      m.Text,
		"senderId":  m.SenderID,
		"timestamp": m.Timestamp.UTC(),
		"likedBy":   []interface{}{},
	}
	if m.SenderName != "" {
		fields["senderName"] = m.SenderName
	}
	if m.SenderAvatar != "" {
		fields["senderAvatar"] = m.SenderAvatar
	}
	if m.ReplyToMessageText != "" {
		fields["replyToMessageText"] = m.ReplyToMessageText
		fields["replyToSenderName"] = m.ReplyToSenderName
	}
	return fields
}

// MessageFromDocument decodes a stored message
func MessageFromDocument(doc docstore.Document) Message {
	likes := docstore.Strings(doc.Data, "likedBy")
	if likes == nil {
		likes = []string{}
	}
	return Message{
		ID:                 doc.ID,
		Text:               docstore.String(doc.Data, "text"),
		SenderID:           docstore.String(doc.Data, "senderId"),
		Timestamp:          docstore.Time(doc.Data, "timestamp"),
		SenderName:         docstore.String(doc.Data, "senderName"),
		SenderAvatar:       docstore.String(doc.Data, "senderAvatar"),
		ReplyToMessageText: docstore.String(doc.Data, "replyToMessageText"),
		ReplyToSenderName:  docstore.String(doc.Data, "replyToSenderName"),
		LikedBy:            likes,
	}
}
