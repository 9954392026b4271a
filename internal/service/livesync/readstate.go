// internal/service/livesync/readstate.go

package livesync

import (
	"context"
	"fmt"
	"time"

	"wimbli/internal/domain/localstore"
)

// SeenKey is the device-local key holding a conversation's last-seen time
func SeenKey(conversationID string) string {
	return "lastSeen_" + conversationID
}

// ReadTracker derives unread state from device-local last-seen times.
// Read state never leaves the device.
type ReadTracker struct {
	local localstore.Store
	now   func() time.Time
}

// NewReadTracker creates a new tracker over one device's local store
func NewReadTracker(local localstore.Store, now func() time.Time) *ReadTracker {
	if now == nil {
		now = time.Now
	}
	return &ReadTracker{local: local, now: now}
}

// MarkSeen records now as the last time the conversation was viewed
func (t *ReadTracker) MarkSeen(ctx context.Context, conversationID string) error {
	value := t.now().UTC().Format(time.RFC3339Nano)
	if err := t.local.Set(ctx, SeenKey(conversationID), value); err != nil {
		return fmt.Errorf("error marking %s seen: %w", conversationID, err)
	}
	return nil
}

// LastSeen returns the recorded last-seen time. A value that does not parse
// is treated as absent.
func (t *ReadTracker) LastSeen(ctx context.Context, conversationID string) (time.Time, bool, error) {
	raw, ok, err := t.local.Get(ctx, SeenKey(conversationID))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("error reading last seen for %s: %w", conversationID, err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	seen, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, nil
	}
	return seen, true, nil
}

// IsUnread reports whether a conversation last updated at lastUpdated has
// activity the device has not seen. A zero lastUpdated is never unread.
func (t *ReadTracker) IsUnread(ctx context.Context, conversationID string, lastUpdated time.Time) (bool, error) {
	if lastUpdated.IsZero() {
		return false, nil
	}
	seen, ok, err := t.LastSeen(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return seen.Before(lastUpdated), nil
}
