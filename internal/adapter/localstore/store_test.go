package localstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wimbli/internal/domain/localstore"
)

func exercise(t *testing.T, f localstore.Factory) {
	t.Helper()
	ctx := context.Background()
	phone := f.ForDevice("phone")
	tablet := f.ForDevice("tablet")

	_, ok, err := phone.Get(ctx, "lastSeen_g1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, phone.Set(ctx, "lastSeen_g1", "2024-01-02T00:00:00Z"))
	v, ok, err := phone.Get(ctx, "lastSeen_g1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-02T00:00:00Z", v)

	_, ok, err = tablet.Get(ctx, "lastSeen_g1")
	require.NoError(t, err)
	assert.False(t, ok, "devices must not share keys")

	require.NoError(t, phone.Delete(ctx, "lastSeen_g1"))
	_, ok, err = phone.Get(ctx, "lastSeen_g1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryFactory(t *testing.T) {
	exercise(t, NewMemoryFactory())
}

func TestRedisFactory(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	exercise(t, NewRedisFactory(rdb))

	require.NoError(t, NewRedisFactory(rdb).ForDevice("phone").Set(context.Background(), "k", "v"))
	got, err := mr.Get("device:phone:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
