// internal/adapter/storage/document_store.go

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"

	"wimbli/internal/domain/docstore"
)

const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS documents_data_gin ON documents USING GIN (data jsonb_path_ops);
`

// changeNotice is published on a collection's subject after every commit
type changeNotice struct {
	Collection string   `json:"collection"`
	IDs        []string `json:"ids"`
	Op         string   `json:"op"`
	At         string   `json:"at"`
}

// DocumentStore implements docstore.Store on a PostgreSQL JSONB table.
// Change notifications fan out over NATS so live queries on any instance
// see commits made by every other instance.
type DocumentStore struct {
	db     *pgxpool.Pool
	bus    *nats.Conn
	logger *slog.Logger
	now    func() time.Time
}

// NewDocumentStore creates a new document store
func NewDocumentStore(db *pgxpool.Pool, bus *nats.Conn, logger *slog.Logger) *DocumentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentStore{
		db:     db,
		bus:    bus,
		logger: logger.With("component", "document_store"),
		now:    time.Now,
	}
}

// Migrate creates the documents table when it does not exist
func (s *DocumentStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("error migrating documents table: %w", err)
	}
	return nil
}

// Subject returns the NATS subject carrying changes for a collection
func Subject(collection string) string {
	return "docs." + strings.ReplaceAll(collection, "/", ".")
}

// Get retrieves a document by ID
func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	query := `
		SELECT data, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`

	var raw []byte
	doc := docstore.Document{ID: id, Collection: collection}
	err := s.db.QueryRow(ctx, query, collection, id).Scan(&raw, &doc.CreateTime, &doc.UpdateTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying document: %w", err)
	}

	if doc.Data, err = docstore.Decode(raw); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Add creates a document with a generated ID
func (s *DocumentStore) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	id := uuid.New().String()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Set creates or replaces a document
func (s *DocumentStore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	query := `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = $3, updated_at = $4
	`

	now := s.now().UTC()
	raw, err := docstore.Encode(docstore.ApplyUpdates(nil, data, now))
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, query, collection, id, raw, now); err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}

	s.publish(collection, "set", id)
	return nil
}

// Update merges fields into an existing document. The row is locked for the
// read-modify-write so concurrent array transforms are not lost.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("error locking document: %w", err)
	}

	current, err := docstore.Decode(raw)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	updated, err := docstore.Encode(docstore.ApplyUpdates(current, fields, now))
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE documents SET data = $3, updated_at = $4 WHERE collection = $1 AND id = $2`,
		collection, id, updated, now,
	)
	if err != nil {
		return fmt.Errorf("error updating document: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	s.publish(collection, "update", id)
	return nil
}

// Delete removes a document
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	return s.DeleteBatch(ctx, collection, []string{id})
}

// DeleteBatch removes up to docstore.MaxBatchSize documents in one statement
func (s *DocumentStore) DeleteBatch(ctx context.Context, collection string, ids []string) error {
	if len(ids) > docstore.MaxBatchSize {
		return docstore.ErrBatchTooLarge
	}
	if len(ids) == 0 {
		return nil
	}

	tag, err := s.db.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = ANY($2)`,
		collection, ids,
	)
	if err != nil {
		return fmt.Errorf("error deleting documents: %w", err)
	}

	if tag.RowsAffected() > 0 {
		s.publish(collection, "delete", ids...)
	}
	return nil
}

// Query runs a one-shot query. Equality and array-contains filters on
// scalar values are pushed down as JSONB containment; everything else,
// including ordering and limit, is evaluated after decoding.
func (s *DocumentStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	sql, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying documents: %w", err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var raw []byte
		doc := docstore.Document{Collection: q.Collection}
		if err := rows.Scan(&doc.ID, &raw, &doc.CreateTime, &doc.UpdateTime); err != nil {
			return nil, fmt.Errorf("error scanning document: %w", err)
		}
		if doc.Data, err = docstore.Decode(raw); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docstore.Evaluate(docs, q), nil
}

func buildQuery(q docstore.Query) (string, []interface{}, error) {
	queryBuilder := strings.Builder{}
	queryBuilder.WriteString(`
		SELECT id, data, created_at, updated_at
		FROM documents
		WHERE collection = $1
	`)

	args := []interface{}{q.Collection}
	argIndex := 2

	for _, f := range q.Filters {
		var containment map[string]interface{}
		switch {
		case f.Op == docstore.OpEqual && isScalar(f.Value):
			containment = map[string]interface{}{f.Field: f.Value}
		case f.Op == docstore.OpArrayContains && isScalar(f.Value):
			containment = map[string]interface{}{f.Field: []interface{}{f.Value}}
		default:
			continue
		}

		raw, err := json.Marshal(containment)
		if err != nil {
			return "", nil, fmt.Errorf("error marshaling filter: %w", err)
		}
		queryBuilder.WriteString(fmt.Sprintf(" AND data @> $%d::jsonb", argIndex))
		args = append(args, raw)
		argIndex++
	}

	return queryBuilder.String(), args, nil
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case string, float64, bool:
		return true
	default:
		return false
	}
}

// Subscribe opens a live query. Each change notice for the collection
// triggers a re-query; notices arriving during a re-query coalesce into one.
func (s *DocumentStore) Subscribe(ctx context.Context, q docstore.Query, handler docstore.SnapshotHandler) (docstore.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	ls := &liveQuery{
		store:   s,
		query:   q,
		handler: handler,
		wake:    make(chan struct{}, 1),
		cancel:  cancel,
	}

	natsSub, err := s.bus.Subscribe(Subject(q.Collection), func(*nats.Msg) {
		ls.notify()
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error subscribing to %s: %w", Subject(q.Collection), err)
	}
	ls.natsSub = natsSub

	ls.notify()
	go ls.run(subCtx)

	return ls, nil
}

func (s *DocumentStore) publish(collection, op string, ids ...string) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(changeNotice{
		Collection: collection,
		IDs:        ids,
		Op:         op,
		At:         s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Error("error marshaling change notice", "error", err)
		return
	}

	if err := s.bus.Publish(Subject(collection), payload); err != nil {
		s.logger.Warn("error publishing change notice", "collection", collection, "error", err)
	}
}

type liveQuery struct {
	store   *DocumentStore
	query   docstore.Query
	handler docstore.SnapshotHandler
	natsSub *nats.Subscription
	wake    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
}

func (l *liveQuery) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *liveQuery) run(ctx context.Context) {
	defer l.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}

		docs, err := l.store.Query(ctx, l.query)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.handler(docstore.Snapshot{Query: l.query}, err)
			return
		}

		l.handler(docstore.Snapshot{
			Query:     l.query,
			Documents: docs,
			ReadTime:  l.store.now().UTC(),
		}, nil)
	}
}

// Unsubscribe stops deliveries
func (l *liveQuery) Unsubscribe() {
	l.once.Do(func() {
		l.cancel()
		if err := l.natsSub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			l.store.logger.Warn("error unsubscribing live query", "collection", l.query.Collection, "error", err)
		}
	})
}
