// internal/adapter/localstore/memory.go

package localstore

import (
	"context"
	"sync"

	"wimbli/internal/domain/localstore"
)

// MemoryFactory keeps every device's keys in process memory
type MemoryFactory struct {
	mu      sync.Mutex
	devices map[string]*MemoryStore
}

// NewMemoryFactory creates a new in-memory local store factory
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{devices: make(map[string]*MemoryStore)}
}

// ForDevice returns the store for one device, creating it on first use
func (f *MemoryFactory) ForDevice(deviceID string) localstore.Store {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.devices[deviceID]
	if !ok {
		s = NewMemoryStore()
		f.devices[deviceID] = s
	}
	return s
}

// MemoryStore implements localstore.Store with a map
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates a new empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set writes a value
func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete removes a key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
