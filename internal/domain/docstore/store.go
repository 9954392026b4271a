// internal/domain/docstore/store.go

package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxBatchSize is the largest number of deletes a single batch may carry
const MaxBatchSize = 500

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize
	ErrBatchTooLarge = fmt.Errorf("batch exceeds %d operations", MaxBatchSize)
)

// Document is a single schema-less record inside a collection
type Document struct {
	ID         string
	Collection string
	Data       map[string]interface{}
	CreateTime time.Time
	UpdateTime time.Time
}

// Path returns the full document path, e.g. "groups/g1/messages/m1"
func (d Document) Path() string {
	return d.Collection + "/" + d.ID
}

// Snapshot is the full result set of a live query at one point in time
type Snapshot struct {
	Query     Query
	Documents []Document
	ReadTime  time.Time
}

// SnapshotHandler receives snapshots from a live query. A non-nil error ends
// the subscription; no snapshots follow it.
type SnapshotHandler func(Snapshot, error)

// Subscription is the handle returned by Store.Subscribe
type Subscription interface {
	// Unsubscribe stops deliveries. Safe to call more than once.
	Unsubscribe()
}

// Store is the document database capability the application is built on.
// Implementations deliver a full snapshot on subscribe and a fresh full
// snapshot after every committed change to the subscribed collection.
type Store interface {
	// Get reads one document; ErrNotFound when it does not exist
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Add creates a document with a generated ID
	Add(ctx context.Context, collection string, data map[string]interface{}) (string, error)

	// Set creates or replaces a document
	Set(ctx context.Context, collection, id string, data map[string]interface{}) error

	// Update merges fields into an existing document. Field values may be
	// transforms (ArrayUnion, ArrayRemove, ServerTimestamp).
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error

	// Delete removes a document; deleting a missing document is not an error
	Delete(ctx context.Context, collection, id string) error

	// DeleteBatch removes up to MaxBatchSize documents atomically
	DeleteBatch(ctx context.Context, collection string, ids []string) error

	// Query runs a one-shot query
	Query(ctx context.Context, q Query) ([]Document, error)

	// Subscribe opens a live query
	Subscribe(ctx context.Context, q Query, handler SnapshotHandler) (Subscription, error)
}

// SubCollection builds a nested collection path such as "groups/{id}/messages"
func SubCollection(parent, id, name string) string {
	return strings.Join([]string{parent, id, name}, "/")
}
