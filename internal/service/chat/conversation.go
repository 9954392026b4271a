// internal/service/chat/conversation.go

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"wimbli/internal/domain/chat"
	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/profile"
	"wimbli/internal/domain/validation"
	"wimbli/internal/observability"
	"wimbli/internal/service/livesync"
)

// Composer is the unsent message being written
type Composer struct {
	Text  string      `json:"text"`
	Reply *chat.Reply `json:"reply,omitempty"`
}

// DefaultMaxMessageLength bounds message text unless overridden
const DefaultMaxMessageLength = 1000

// Option configures a Service
type Option func(*Service)

// WithMaxMessageLength overrides the message length limit
func WithMaxMessageLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLength = n
		}
	}
}

// Service opens chat sessions and writes messages
type Service struct {
	store     docstore.Store
	resolver  *livesync.DisplayResolver
	logger    *slog.Logger
	maxLength int
}

// NewService creates a new chat service
func NewService(store docstore.Store, resolver *livesync.DisplayResolver, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     store,
		resolver:  resolver,
		logger:    logger.With("service", "chat"),
		maxLength: DefaultMaxMessageLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requireMember fails with docstore.ErrNotFound for a missing group and
// chat.ErrNotMember when uid has not joined it
func (s *Service) requireMember(ctx context.Context, groupID, uid string) error {
	doc, err := s.store.Get(ctx, chat.GroupsCollection, groupID)
	if err != nil {
		return fmt.Errorf("error getting chat: %w", err)
	}
	if !chat.GroupFromDocument(*doc).HasMember(uid) {
		return chat.ErrNotMember
	}
	return nil
}

// Send writes a message from uid to a group and touches the group's
// summary. A failure to touch the summary after the message is written is
// only logged.
func (s *Service) Send(ctx context.Context, groupID, uid, text string, reply *chat.Reply) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", chat.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > s.maxLength {
		return "", validation.New("text", fmt.Sprintf("must be at most %d characters", s.maxLength))
	}
	if err := s.requireMember(ctx, groupID, uid); err != nil {
		return "", err
	}

	msg := chat.Message{
		Text:     text,
		SenderID: uid,
	}
	if sender := s.resolver.Lookup(ctx, uid); sender != profile.UnknownDisplay {
		msg.SenderName = sender.Name
		msg.SenderAvatar = sender.Avatar
	}
	if reply != nil {
		msg.ReplyToMessageText = reply.Text
		msg.ReplyToSenderName = reply.SenderName
	}

	fields := msg.Fields()
	fields["timestamp"] = docstore.ServerTimestamp

	id, err := s.store.Add(ctx, chat.MessagesCollection(groupID), fields)
	if err != nil {
		return "", fmt.Errorf("error sending message: %w", err)
	}

	err = s.store.Update(ctx, chat.GroupsCollection, groupID, map[string]interface{}{
		"lastMessage": text,
		"lastUpdated": docstore.ServerTimestamp,
	})
	if err != nil {
		s.logger.Error("message sent but chat summary not updated", "group", groupID, "message", id, "error", err)
	}
	return id, nil
}

// ToggleLike flips uid's like on a stored message and returns whether the
// message is now liked
func (s *Service) ToggleLike(ctx context.Context, groupID, messageID, uid string) (bool, error) {
	if err := s.requireMember(ctx, groupID, uid); err != nil {
		return false, err
	}
	doc, err := s.store.Get(ctx, chat.MessagesCollection(groupID), messageID)
	if err != nil {
		return false, fmt.Errorf("error getting message: %w", err)
	}
	like := !chat.MessageFromDocument(*doc).LikedByUser(uid)
	if err := s.setLike(ctx, groupID, messageID, uid, like); err != nil {
		return !like, err
	}
	return like, nil
}

func (s *Service) setLike(ctx context.Context, groupID, messageID, uid string, like bool) error {
	var transform docstore.Transform
	if like {
		transform = docstore.ArrayUnion(uid)
	} else {
		transform = docstore.ArrayRemove(uid)
	}

	err := s.store.Update(ctx, chat.MessagesCollection(groupID), messageID, map[string]interface{}{
		"likedBy": transform,
	})
	if err != nil {
		return fmt.Errorf("error toggling like: %w", err)
	}
	return nil
}

// OpenGroupList starts a group list session for uid
func (s *Service) OpenGroupList(ctx context.Context, uid string, reads *livesync.ReadTracker) (*GroupList, error) {
	return openGroupList(ctx, s.store, reads, uid, s.logger)
}

// Conversation is one user's open chat: the live message list plus the
// composer
type Conversation struct {
	groupID  string
	uid      string
	svc      *Service
	reads    *livesync.ReadTracker
	view     *livesync.View[chat.Message]
	composer *livesync.Optimistic[Composer]
	logger   *slog.Logger
	once     sync.Once
}

// OpenConversation subscribes to a group's messages and marks it seen. Only
// members may open a conversation.
func (s *Service) OpenConversation(ctx context.Context, groupID, uid string, reads *livesync.ReadTracker) (*Conversation, error) {
	if err := s.requireMember(ctx, groupID, uid); err != nil {
		return nil, err
	}

	c := &Conversation{
		groupID:  groupID,
		uid:      uid,
		svc:      s,
		reads:    reads,
		composer: livesync.NewOptimistic(Composer{}),
		logger:   s.logger.With("group", groupID, "user", uid),
	}

	c.view = livesync.NewView(s.store, livesync.ViewConfig[chat.Message]{
		Name:    "messages",
		Decode:  chat.MessageFromDocument,
		ID:      func(m chat.Message) string { return m.ID },
		Resolve: c.resolveSenders,
		Less:    func(a, b chat.Message) bool { return a.Timestamp.Before(b.Timestamp) },
		Logger:  c.logger,
	})

	q := docstore.Collection(chat.MessagesCollection(groupID)).OrderBy("timestamp", docstore.Ascending)
	if err := c.view.Open(ctx, q); err != nil {
		c.view.Close()
		c.composer.Close()
		return nil, err
	}

	c.markSeen(ctx)
	return c, nil
}

func (c *Conversation) resolveSenders(ctx context.Context, msgs []chat.Message) ([]chat.Message, error) {
	refs := make([]livesync.DisplayRef, len(msgs))
	for i, m := range msgs {
		refs[i] = livesync.DisplayRef{
			OwnerID:  m.SenderID,
			Embedded: profile.Display{Name: m.SenderName, Avatar: m.SenderAvatar},
		}
	}

	displays, err := c.svc.resolver.Resolve(ctx, refs)
	if err != nil {
		return nil, err
	}

	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		m.SenderName = displays[i].Name
		m.SenderAvatar = displays[i].Avatar
		out[i] = m
	}
	return out, nil
}

func (c *Conversation) markSeen(ctx context.Context) {
	if err := c.reads.MarkSeen(ctx, c.groupID); err != nil {
		c.logger.Warn("error marking chat seen", "error", err)
	}
}

// SetDraft replaces the composer text
func (c *Conversation) SetDraft(text string) {
	c.composer.Update(func(cur Composer) Composer {
		cur.Text = text
		return cur
	})
}

// ReplyTo quotes a published message in the composer
func (c *Conversation) ReplyTo(messageID string) error {
	msg, ok := c.view.Lookup(messageID)
	if !ok {
		return fmt.Errorf("message %s: %w", messageID, docstore.ErrNotFound)
	}
	c.composer.Update(func(cur Composer) Composer {
		cur.Reply = &chat.Reply{Text: msg.Text, SenderName: msg.SenderName}
		return cur
	})
	return nil
}

// CancelReply drops the quoted message
func (c *Conversation) CancelReply() {
	c.composer.Update(func(cur Composer) Composer {
		cur.Reply = nil
		return cur
	})
}

// Send posts the composer's text. The composer clears at once; if the
// message cannot be written the text and reply come back and the error is
// returned.
func (c *Conversation) Send(ctx context.Context) (string, error) {
	draft := c.composer.State()
	if strings.TrimSpace(draft.Text) == "" {
		return "", chat.ErrEmptyMessage
	}

	var messageID string
	err := c.composer.Run(ctx, livesync.Mutation[Composer]{
		Name:  "send_message",
		Apply: func(Composer) Composer { return Composer{} },
		Issue: func(ctx context.Context) error {
			id, err := c.svc.Send(ctx, c.groupID, c.uid, draft.Text, draft.Reply)
			messageID = id
			return err
		},
		Compensate: func(current, original Composer) Composer {
			if strings.TrimSpace(current.Text) != "" {
				original.Text = original.Text + " " + current.Text
			}
			if current.Reply != nil {
				original.Reply = current.Reply
			}
			return original
		},
	})
	if err != nil {
		c.logger.Warn("send failed, draft restored", "error", err)
		return "", err
	}
	return messageID, nil
}

// ToggleLike likes or unlikes a message for the current user. The list
// shows the change at once and reverts if the write fails.
func (c *Conversation) ToggleLike(ctx context.Context, messageID string) error {
	msg, ok := c.view.Lookup(messageID)
	if !ok {
		return fmt.Errorf("message %s: %w", messageID, docstore.ErrNotFound)
	}

	like := !msg.LikedByUser(c.uid)
	next := msg.ToggleLike(c.uid)
	undo := c.view.Patch(messageID, func(m chat.Message) chat.Message {
		m.LikedBy = next
		return m
	})

	if err := c.svc.setLike(ctx, c.groupID, messageID, c.uid, like); err != nil {
		undo()
		observability.OptimisticRollbacks.WithLabelValues("toggle_like").Inc()
		return err
	}
	return nil
}

// Messages returns the published message list
func (c *Conversation) Messages() livesync.State[chat.Message] {
	return c.view.State()
}

// MessageChanges signals whenever the message list is republished
func (c *Conversation) MessageChanges() <-chan struct{} {
	return c.view.Changes()
}

// Composer returns the composer state
func (c *Conversation) Composer() Composer {
	return c.composer.State()
}

// ComposerChanges signals whenever the composer changes
func (c *Conversation) ComposerChanges() <-chan struct{} {
	return c.composer.Changes()
}

// Close marks the chat seen and releases the subscription. Safe to call
// more than once.
func (c *Conversation) Close(ctx context.Context) {
	c.once.Do(func() {
		c.markSeen(ctx)
		c.view.Close()
		c.composer.Close()
	})
}
