package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wimbli/internal/adapter/localstore"
	"wimbli/internal/adapter/memstore"
	"wimbli/internal/domain/chat"
	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/feed"
	"wimbli/internal/domain/validation"
	"wimbli/internal/service/livesync"
	"wimbli/pkg/logging"
)

type faultyStore struct {
	docstore.Store
	failAdds    bool
	failUpdates bool
}

func (f *faultyStore) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	if f.failAdds {
		return "", errors.New("write rejected")
	}
	return f.Store.Add(ctx, collection, data)
}

func (f *faultyStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if f.failUpdates {
		return errors.New("write rejected")
	}
	return f.Store.Update(ctx, collection, id, fields)
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newChatService(store docstore.Store) *Service {
	logger := logging.Discard()
	return NewService(store, livesync.NewDisplayResolver(store, 0, logger), logger)
}

func newReads(now func() time.Time) *livesync.ReadTracker {
	return livesync.NewReadTracker(localstore.NewMemoryStore(), now)
}

func seedGroup(t *testing.T, store docstore.Store, id string, members ...string) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), chat.GroupsCollection, id, map[string]interface{}{
		"title": "Jazz Night", "members": members,
	}))
}

func waitMessages(t *testing.T, c *Conversation, cond func([]chat.Message) bool) []chat.Message {
	t.Helper()
	var msgs []chat.Message
	require.Eventually(t, func() bool {
		st := c.Messages()
		msgs = st.Items
		return st.Ready && cond(msgs)
	}, 2*time.Second, 5*time.Millisecond)
	return msgs
}

func TestJoinChatSharesOneGroup(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	groups := NewGroupService(store, logging.Discard())

	first, err := groups.JoinChat(ctx, "Jazz Night", "alice")
	require.NoError(t, err)
	second, err := groups.JoinChat(ctx, "Jazz Night", "bob")
	require.NoError(t, err)
	again, err := groups.JoinChat(ctx, "  Jazz Night ", "alice")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, again)

	all, err := store.Query(ctx, docstore.Collection(chat.GroupsCollection))
	require.NoError(t, err)
	require.Len(t, all, 1)

	g, err := groups.Get(ctx, first)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, g.Members)
	assert.Equal(t, "Jazz Night", g.Title)
	assert.False(t, g.CreatedAt.IsZero())
}

func TestJoinChatRequiresTitle(t *testing.T) {
	store := memstore.New()
	_, err := NewGroupService(store, logging.Discard()).JoinChat(context.Background(), "   ", "alice")

	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
}

func TestJoinForPost(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Set(ctx, feed.PostsCollection, "p1", map[string]interface{}{"title": "Park Run"}))
	groups := NewGroupService(store, logging.Discard())

	id, err := groups.JoinForPost(ctx, "p1", "alice")
	require.NoError(t, err)
	g, err := groups.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Park Run", g.Title)

	_, err = groups.JoinForPost(ctx, "missing", "alice")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestGroupListUnreadAndRefocus(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	clk := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	reads := newReads(clk.Now)

	require.NoError(t, store.Set(ctx, chat.GroupsCollection, "old", map[string]interface{}{
		"title": "Old", "members": []string{"alice"}, "lastUpdated": clk.now.Add(-2 * time.Hour),
	}))
	require.NoError(t, store.Set(ctx, chat.GroupsCollection, "new", map[string]interface{}{
		"title": "New", "members": []string{"alice", "bob"}, "lastUpdated": clk.now.Add(-time.Hour),
	}))
	require.NoError(t, store.Set(ctx, chat.GroupsCollection, "quiet", map[string]interface{}{
		"title": "Quiet", "members": []string{"alice"},
	}))
	require.NoError(t, store.Set(ctx, chat.GroupsCollection, "other", map[string]interface{}{
		"title": "Other", "members": []string{"bob"}, "lastUpdated": clk.now,
	}))
	require.NoError(t, reads.MarkSeen(ctx, "old"))

	list, err := newChatService(store).OpenGroupList(ctx, "alice", reads)
	require.NoError(t, err)
	defer list.Close()

	var st livesync.State[chat.GroupSummary]
	require.Eventually(t, func() bool {
		st = list.State()
		return st.Ready && len(st.Items) == 3
	}, 2*time.Second, 5*time.Millisecond)

	unread := map[string]bool{}
	for _, g := range st.Items {
		unread[g.ID] = g.Unread
	}
	assert.Equal(t, map[string]bool{"old": false, "new": true, "quiet": false}, unread)
	assert.Equal(t, "new", st.Items[0].ID)

	require.NoError(t, reads.MarkSeen(ctx, "new"))
	list.Refocus()
	require.Eventually(t, func() bool {
		for _, g := range list.State().Items {
			if g.ID == "new" {
				return !g.Unread
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConversationSendAndReply(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Set(ctx, "users", "alice", map[string]interface{}{"username": "alice", "profilePicture": "a.png"}))
	require.NoError(t, store.Set(ctx, chat.GroupsCollection, "g1", map[string]interface{}{
		"title": "Jazz Night", "members": []string{"alice"},
	}))

	conv, err := newChatService(store).OpenConversation(ctx, "g1", "alice", newReads(nil))
	require.NoError(t, err)
	defer conv.Close(ctx)

	conv.SetDraft("  first  ")
	id, err := conv.Send(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, Composer{}, conv.Composer())

	msgs := waitMessages(t, conv, func(m []chat.Message) bool { return len(m) == 1 })
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "alice", msgs[0].SenderName)
	assert.Equal(t, "a.png", msgs[0].SenderAvatar)
	assert.False(t, msgs[0].Timestamp.IsZero())

	g, err := store.Get(ctx, chat.GroupsCollection, "g1")
	require.NoError(t, err)
	assert.Equal(t, "first", docstore.String(g.Data, "lastMessage"))
	assert.False(t, docstore.Time(g.Data, "lastUpdated").IsZero())

	require.NoError(t, conv.ReplyTo(id))
	require.NotNil(t, conv.Composer().Reply)
	conv.SetDraft("second")
	_, err = conv.Send(ctx)
	require.NoError(t, err)

	msgs = waitMessages(t, conv, func(m []chat.Message) bool { return len(m) == 2 })
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, "first", msgs[1].ReplyToMessageText)
	assert.Equal(t, "alice", msgs[1].ReplyToSenderName)

	assert.ErrorIs(t, conv.ReplyTo("missing"), docstore.ErrNotFound)
}

func TestConversationRejectsEmptyMessage(t *testing.T) {
	ctx := context.Background()
	inner := memstore.New()
	seedGroup(t, inner, "g1", "alice")
	store := &faultyStore{Store: inner, failAdds: true}

	conv, err := newChatService(store).OpenConversation(ctx, "g1", "alice", newReads(nil))
	require.NoError(t, err)
	defer conv.Close(ctx)

	conv.SetDraft(" \n ")
	_, err = conv.Send(ctx)
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
	assert.Equal(t, " \n ", conv.Composer().Text)
}

func TestConversationSendRollsBackDraft(t *testing.T) {
	ctx := context.Background()
	inner := memstore.New()
	seedGroup(t, inner, "g1", "alice")
	require.NoError(t, inner.Set(ctx, chat.MessagesCollection("g1"), "m1", map[string]interface{}{
		"text": "hi", "senderId": "bob", "senderName": "bob", "timestamp": time.Now(),
	}))
	store := &faultyStore{Store: inner, failAdds: true}

	conv, err := newChatService(store).OpenConversation(ctx, "g1", "alice", newReads(nil))
	require.NoError(t, err)
	defer conv.Close(ctx)
	waitMessages(t, conv, func(m []chat.Message) bool { return len(m) == 1 })

	require.NoError(t, conv.ReplyTo("m1"))
	conv.SetDraft("hello")
	_, err = conv.Send(ctx)
	require.Error(t, err)

	assert.Equal(t, "hello", conv.Composer().Text)
	require.NotNil(t, conv.Composer().Reply)
	assert.Equal(t, "hi", conv.Composer().Reply.Text)

	msgs, err := inner.Query(ctx, docstore.Collection(chat.MessagesCollection("g1")))
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestConversationToggleLikeIsInvolution(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedGroup(t, store, "g1", "alice", "bob")
	require.NoError(t, store.Set(ctx, chat.MessagesCollection("g1"), "m1", map[string]interface{}{
		"text": "hi", "senderId": "bob", "senderName": "bob", "timestamp": time.Now(), "likedBy": []string{"carol"},
	}))

	conv, err := newChatService(store).OpenConversation(ctx, "g1", "alice", newReads(nil))
	require.NoError(t, err)
	defer conv.Close(ctx)
	waitMessages(t, conv, func(m []chat.Message) bool { return len(m) == 1 })

	require.NoError(t, conv.ToggleLike(ctx, "m1"))
	msgs := waitMessages(t, conv, func(m []chat.Message) bool { return m[0].LikedByUser("alice") })
	assert.ElementsMatch(t, []string{"carol", "alice"}, msgs[0].LikedBy)

	require.NoError(t, conv.ToggleLike(ctx, "m1"))
	msgs = waitMessages(t, conv, func(m []chat.Message) bool { return !m[0].LikedByUser("alice") })
	assert.Equal(t, []string{"carol"}, msgs[0].LikedBy)

	doc, err := store.Get(ctx, chat.MessagesCollection("g1"), "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, docstore.Strings(doc.Data, "likedBy"))
}

func TestConversationToggleLikeRevertsOnFailure(t *testing.T) {
	ctx := context.Background()
	inner := memstore.New()
	seedGroup(t, inner, "g1", "alice")
	require.NoError(t, inner.Set(ctx, chat.MessagesCollection("g1"), "m1", map[string]interface{}{
		"text": "hi", "senderId": "bob", "timestamp": time.Now(),
	}))
	store := &faultyStore{Store: inner, failUpdates: true}

	conv, err := newChatService(store).OpenConversation(ctx, "g1", "alice", newReads(nil))
	require.NoError(t, err)
	defer conv.Close(ctx)
	waitMessages(t, conv, func(m []chat.Message) bool { return len(m) == 1 })

	require.Error(t, conv.ToggleLike(ctx, "m1"))
	msg, _ := conv.view.Lookup("m1")
	assert.False(t, msg.LikedByUser("alice"))
	assert.Empty(t, conv.Messages().Items[0].LikedBy)
}

func TestConversationMarksSeenOnOpenAndClose(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedGroup(t, store, "g1", "alice")
	clk := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	reads := newReads(clk.Now)

	conv, err := newChatService(store).OpenConversation(ctx, "g1", "alice", reads)
	require.NoError(t, err)

	seen, ok, err := reads.LastSeen(ctx, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, seen.Equal(clk.now))

	clk.now = clk.now.Add(time.Minute)
	conv.Close(ctx)
	conv.Close(ctx)

	seen, _, err = reads.LastSeen(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, seen.Equal(clk.now))
}

func TestServiceSendLimitsLength(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	logger := logging.Discard()
	seedGroup(t, store, "g1", "alice")
	svc := NewService(store, livesync.NewDisplayResolver(store, 0, logger), logger, WithMaxMessageLength(5))

	_, err := svc.Send(ctx, "g1", "alice", "too long", nil)
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "text", verr.Field)

	// five characters, ten bytes
	_, err = svc.Send(ctx, "g1", "alice", "héllö", nil)
	require.NoError(t, err)

	_, err = svc.Send(ctx, "g1", "alice", "   ", nil)
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)

	id, err := svc.Send(ctx, "g1", "alice", "hey", nil)
	require.NoError(t, err)
	doc, err := store.Get(ctx, chat.MessagesCollection("g1"), id)
	require.NoError(t, err)
	assert.Equal(t, "hey", docstore.String(doc.Data, "text"))
	assert.Empty(t, docstore.String(doc.Data, "senderName"))
}

func TestServiceToggleLike(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedGroup(t, store, "g1", "alice", "bob")
	svc := newChatService(store)
	id, err := svc.Send(ctx, "g1", "bob", "hi", nil)
	require.NoError(t, err)

	liked, err := svc.ToggleLike(ctx, "g1", id, "alice")
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = svc.ToggleLike(ctx, "g1", id, "alice")
	require.NoError(t, err)
	assert.False(t, liked)

	_, err = svc.ToggleLike(ctx, "g1", "missing", "alice")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestServiceRequiresMembership(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedGroup(t, store, "g1", "alice")
	svc := newChatService(store)

	id, err := svc.Send(ctx, "g1", "alice", "hi", nil)
	require.NoError(t, err)

	_, err = svc.Send(ctx, "no-such-group", "alice", "hi", nil)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	_, err = svc.Send(ctx, "g1", "mallory", "hi", nil)
	assert.ErrorIs(t, err, chat.ErrNotMember)

	_, err = svc.ToggleLike(ctx, "g1", id, "mallory")
	assert.ErrorIs(t, err, chat.ErrNotMember)
	_, err = svc.ToggleLike(ctx, "no-such-group", id, "alice")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = svc.OpenConversation(ctx, "g1", "mallory", newReads(nil))
	assert.ErrorIs(t, err, chat.ErrNotMember)
	_, err = svc.OpenConversation(ctx, "no-such-group", "alice", newReads(nil))
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	all, err := store.Query(ctx, docstore.Collection(chat.MessagesCollection("no-such-group")))
	require.NoError(t, err)
	assert.Empty(t, all)
	msgs, err := store.Query(ctx, docstore.Collection(chat.MessagesCollection("g1")))
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
