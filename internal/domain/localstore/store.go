// internal/domain/localstore/store.go

package localstore

import (
	"context"
)

// Store is key/value storage local to one device. Nothing written here is
// shared with other devices of the same account.
type Store interface {
	// Get returns the value for key and whether it exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes a value, replacing any previous one
	Set(ctx context.Context, key, value string) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error
}

// Factory opens the local store for a device
type Factory interface {
	ForDevice(deviceID string) Store
}
