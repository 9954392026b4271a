package livesync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wimbli/internal/adapter/localstore"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestIsUnread(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		local       string
		lastUpdated string
		want        bool
	}{
		{"no record, updated", "", "2024-01-01T00:00:00Z", true},
		{"no record, never updated", "", "", false},
		{"seen after update", "2024-01-02T00:00:00Z", "2024-01-01T00:00:00Z", false},
		{"seen before update", "2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", true},
		{"seen at update", "2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z", false},
		{"unparseable record", "yesterday", "2024-01-01T00:00:00Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := localstore.NewMemoryStore()
			if tt.local != "" {
				require.NoError(t, local.Set(ctx, SeenKey("g1"), tt.local))
			}
			var updated time.Time
			if tt.lastUpdated != "" {
				updated = mustTime(t, tt.lastUpdated)
			}

			got, err := NewReadTracker(local, nil).IsUnread(ctx, "g1", updated)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarkSeenWritesUTCInstant(t *testing.T) {
	ctx := context.Background()
	local := localstore.NewMemoryStore()
	at := time.Date(2024, 2, 3, 4, 5, 6, 7, time.FixedZone("EST", -5*3600))
	tracker := NewReadTracker(local, func() time.Time { return at })

	require.NoError(t, tracker.MarkSeen(ctx, "g1"))

	raw, ok, err := local.Get(ctx, "lastSeen_g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-02-03T09:05:06.000000007Z", raw)

	unread, err := tracker.IsUnread(ctx, "g1", at.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, unread)

	unread, err = tracker.IsUnread(ctx, "g1", at.Add(time.Nanosecond))
	require.NoError(t, err)
	assert.True(t, unread)
}
