// internal/adapter/blobstore/memory.go

package blobstore

import (
	"context"
	"sync"
)

// Object is a blob held by MemoryStore
type Object struct {
	ContentType string
	Data        []byte
}

// MemoryStore keeps uploads in memory, for tests and local runs
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	baseURL string
}

// NewMemoryStore creates a new in-memory blob store
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Object),
		baseURL: baseURL,
	}
}

// Upload stores a copy of data under path
func (m *MemoryStore) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	return m.baseURL + "/" + path, nil
}

// Object returns a stored object
func (m *MemoryStore) Object(path string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	return obj, ok
}
