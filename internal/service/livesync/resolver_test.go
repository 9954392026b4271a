package livesync

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wimbli/internal/adapter/memstore"
	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/profile"
	"wimbli/pkg/logging"
)

type countingStore struct {
	docstore.Store
	mu   sync.Mutex
	gets map[string]int
}

func newCountingStore(inner docstore.Store) *countingStore {
	return &countingStore{Store: inner, gets: make(map[string]int)}
}

func (c *countingStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	c.mu.Lock()
	c.gets[collection+"/"+id]++
	c.mu.Unlock()
	return c.Store.Get(ctx, collection, id)
}

func (c *countingStore) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets[path]
}

func (c *countingStore) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.gets {
		n += v
	}
	return n
}

func seedUser(t *testing.T, s docstore.Store, id, username, avatar string) {
	t.Helper()
	data := map[string]interface{}{"username": username}
	if avatar != "" {
		data["profilePicture"] = avatar
	}
	require.NoError(t, s.Set(context.Background(), profile.UsersCollection, id, data))
}

func TestResolverFastPathSkipsReads(t *testing.T) {
	store := newCountingStore(memstore.New())
	r := NewDisplayResolver(store, 0, logging.Discard())

	out, err := r.Resolve(context.Background(), []DisplayRef{
		{OwnerID: "u1", Embedded: profile.Display{Name: "maya", Avatar: "m.png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []profile.Display{{Name: "maya", Avatar: "m.png"}}, out)
	assert.Zero(t, store.total())
}

func TestResolverReadsEachOwnerOncePerPass(t *testing.T) {
	store := newCountingStore(memstore.New())
	seedUser(t, store, "u1", "maya", "m.png")
	seedUser(t, store, "u2", "theo", "")

	r := NewDisplayResolver(store, 2, logging.Discard())
	refs := []DisplayRef{
		{OwnerID: "u1"},
		{OwnerID: "u2"},
		{OwnerID: "u1"},
		{OwnerID: "ghost"},
		{OwnerID: "u1"},
	}

	out, err := r.Resolve(context.Background(), refs)
	require.NoError(t, err)
	assert.Equal(t, []profile.Display{
		{Name: "maya", Avatar: "m.png"},
		{Name: "theo"},
		{Name: "maya", Avatar: "m.png"},
		profile.UnknownDisplay,
		{Name: "maya", Avatar: "m.png"},
	}, out)

	assert.Equal(t, 1, store.count("users/u1"))
	assert.Equal(t, 1, store.count("users/u2"))
	assert.Equal(t, 1, store.count("users/ghost"))
}

func TestResolverIsIdempotent(t *testing.T) {
	store := memstore.New()
	seedUser(t, store, "u1", "maya", "m.png")
	r := NewDisplayResolver(store, 0, logging.Discard())

	refs := []DisplayRef{{OwnerID: "u1"}, {OwnerID: "missing"}, {OwnerID: "u2", Embedded: profile.Display{Name: "x"}}}
	first, err := r.Resolve(context.Background(), refs)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), refs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolverCancelled(t *testing.T) {
	r := NewDisplayResolver(memstore.New(), 0, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, []DisplayRef{{OwnerID: "u1"}})
	assert.ErrorIs(t, err, context.Canceled)
}
