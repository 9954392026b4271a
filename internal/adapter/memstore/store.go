// internal/adapter/memstore/store.go

package memstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"wimbli/internal/domain/docstore"
)

// Option configures a Store
type Option func(*Store)

// WithClock overrides the store's commit clock
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is an in-memory docstore.Store. Live queries are re-evaluated after
// every commit to their collection and delivered on a per-subscription
// goroutine; a slow subscriber only ever sees the latest snapshot.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Document
	subs        map[*subscription]struct{}
	now         func() time.Time
}

// New creates a new in-memory store
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]docstore.Document),
		subs:        make(map[*subscription]struct{}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get reads one document
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return &doc, nil
}

// Add creates a document with a generated ID
func (s *Store) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	id := uuid.New().String()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Set creates or replaces a document
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	docs := s.collection(collection)
	created := now
	if existing, ok := docs[id]; ok {
		created = existing.CreateTime
	}

	docs[id] = docstore.Document{
		ID:         id,
		Collection: collection,
		Data:       docstore.ApplyUpdates(nil, data, now),
		CreateTime: created,
		UpdateTime: now,
	}
	s.commit(collection)
	return nil
}

// Update merges fields into an existing document
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	existing, ok := docs[id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	now := s.now().UTC()
	existing.Data = docstore.ApplyUpdates(existing.Data, fields, now)
	existing.UpdateTime = now
	docs[id] = existing
	s.commit(collection)
	return nil
}

// Delete removes a document
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.DeleteBatch(ctx, collection, []string{id})
}

// DeleteBatch removes up to docstore.MaxBatchSize documents in one commit
func (s *Store) DeleteBatch(ctx context.Context, collection string, ids []string) error {
	if len(ids) > docstore.MaxBatchSize {
		return docstore.ErrBatchTooLarge
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	removed := 0
	for _, id := range ids {
		if _, ok := docs[id]; ok {
			delete(docs, id)
			removed++
		}
	}
	if removed > 0 {
		s.commit(collection)
	}
	return nil
}

// Query runs a one-shot query
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.evaluate(q), nil
}

// Subscribe opens a live query. The first snapshot is delivered
// asynchronously, as is every snapshot after it.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, handler docstore.SnapshotHandler) (docstore.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscription{
		store:   s,
		query:   q,
		handler: handler,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub.push(s.snapshot(q))
	s.mu.Unlock()

	go sub.run()
	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// FailSubscriptions terminates every live query on collection with err, the
// way a backend drops listeners on permission or quota errors.
func (s *Store) FailSubscriptions(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		if sub.query.Collection == collection {
			sub.fail(err)
			delete(s.subs, sub)
		}
	}
}

// Subscribers returns the number of live queries currently open
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Store) collection(name string) map[string]docstore.Document {
	docs, ok := s.collections[name]
	if !ok {
		docs = make(map[string]docstore.Document)
		s.collections[name] = docs
	}
	return docs
}

// commit must be called with mu held for writing
func (s *Store) commit(collection string) {
	for sub := range s.subs {
		if sub.query.Collection == collection {
			sub.push(s.snapshot(sub.query))
		}
	}
}

func (s *Store) snapshot(q docstore.Query) docstore.Snapshot {
	return docstore.Snapshot{
		Query:     q,
		Documents: s.evaluate(q),
		ReadTime:  s.now().UTC(),
	}
}

func (s *Store) evaluate(q docstore.Query) []docstore.Document {
	docs := s.collections[q.Collection]
	all := make([]docstore.Document, 0, len(docs))
	for _, d := range docs {
		all = append(all, d)
	}
	return docstore.Evaluate(all, q)
}

func (s *Store) remove(sub *subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

type subscription struct {
	store   *Store
	query   docstore.Query
	handler docstore.SnapshotHandler

	mu      sync.Mutex
	pending *docstore.Snapshot
	err     error

	signal chan struct{}
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

func (sub *subscription) push(snap docstore.Snapshot) {
	sub.mu.Lock()
	sub.pending = &snap
	sub.mu.Unlock()
	sub.wake()
}

func (sub *subscription) fail(err error) {
	sub.mu.Lock()
	sub.err = err
	sub.mu.Unlock()
	sub.wake()
}

func (sub *subscription) wake() {
	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

func (sub *subscription) run() {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.signal:
		}

		sub.mu.Lock()
		snap, err := sub.pending, sub.err
		sub.pending = nil
		sub.mu.Unlock()

		if sub.closed.Load() {
			return
		}
		if err != nil {
			sub.handler(docstore.Snapshot{Query: sub.query}, err)
			sub.close()
			return
		}
		if snap != nil {
			sub.handler(*snap, nil)
		}
	}
}

// Unsubscribe stops deliveries; safe to call from inside the handler
func (sub *subscription) Unsubscribe() {
	sub.close()
	sub.store.remove(sub)
}

func (sub *subscription) close() {
	sub.once.Do(func() {
		sub.closed.Store(true)
		close(sub.done)
	})
}
