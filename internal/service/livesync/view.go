// internal/service/livesync/view.go

package livesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"wimbli/internal/domain/docstore"
	"wimbli/internal/observability"
)

// ErrClosed is returned when opening a view that has been closed
var ErrClosed = errors.New("view closed")

// ResolveFunc enriches decoded items before they are published. It must
// return items in the same order and must not modify its input.
type ResolveFunc[T any] func(ctx context.Context, items []T) ([]T, error)

// ViewConfig describes how a View turns documents into published items
type ViewConfig[T any] struct {
	// Name labels the view in logs and metrics
	Name string

	// Decode converts a stored document into an item
	Decode func(docstore.Document) T

	// ID returns an item's document id, used for overlays and tie-breaks
	ID func(T) string

	// Resolve is optional; it runs off the snapshot goroutine
	Resolve ResolveFunc[T]

	// Less orders items; items it considers equal are ordered by ID
	Less func(a, b T) bool

	Logger *slog.Logger
}

// State is what a View publishes
type State[T any] struct {
	Items   []T
	Err     error
	Version uint64
	Ready   bool
}

type overlay[T any] struct {
	token uint64
	seq   uint64
	fn    func(T) T
}

// View keeps a live, filtered and sorted projection of one query.
//
// The view subscribes once per query identity and retains the latest raw
// snapshot, so predicate changes re-filter in memory. Each snapshot is
// resolved asynchronously; a resolution that finishes after a newer snapshot
// has arrived is discarded.
type View[T any] struct {
	store  docstore.Store
	cfg    ViewConfig[T]
	logger *slog.Logger

	mu         sync.Mutex
	query      docstore.Query
	hasQuery   bool
	epoch      uint64
	sub        docstore.Subscription
	raw        []T
	hasRaw     bool
	rawSeq     uint64
	generation uint64
	resolved   []T
	ready      bool
	appliedSeq uint64
	predicates map[string]func(T) bool
	overlays   map[string][]overlay[T]
	nextToken  uint64
	state      State[T]
	changes    chan struct{}
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewView creates a new view. Nothing is subscribed until Open.
func NewView[T any](store docstore.Store, cfg ViewConfig[T]) *View[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &View[T]{
		store:      store,
		cfg:        cfg,
		logger:     logger.With("view", cfg.Name),
		predicates: make(map[string]func(T) bool),
		overlays:   make(map[string][]overlay[T]),
		changes:    make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Open subscribes to q. Opening the query already open is a no-op; opening
// a different query releases the previous subscription first.
func (v *View[T]) Open(ctx context.Context, q docstore.Query) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		v.mu.Unlock()
		return err
	}
	if v.hasQuery && v.query.Key() == q.Key() {
		v.mu.Unlock()
		return nil
	}

	old := v.sub
	v.sub = nil
	v.query = q
	v.hasQuery = true
	v.epoch++
	epoch := v.epoch
	v.raw, v.hasRaw = nil, false
	v.resolved, v.ready = nil, false
	v.generation++
	v.overlays = make(map[string][]overlay[T])
	v.state = State[T]{Version: v.state.Version}
	v.mu.Unlock()

	if old != nil {
		old.Unsubscribe()
	}

	sub, err := v.store.Subscribe(v.ctx, q, func(snap docstore.Snapshot, err error) {
		v.handleSnapshot(epoch, snap, err)
	})
	if err != nil {
		v.mu.Lock()
		if v.epoch == epoch {
			v.hasQuery = false
		}
		v.mu.Unlock()
		return fmt.Errorf("error subscribing %s: %w", v.cfg.Name, err)
	}

	v.mu.Lock()
	if v.closed || v.epoch != epoch {
		v.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	v.sub = sub
	v.mu.Unlock()
	return nil
}

func (v *View[T]) handleSnapshot(epoch uint64, snap docstore.Snapshot, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || epoch != v.epoch {
		return
	}

	if err != nil {
		observability.ListenerErrors.WithLabelValues(v.cfg.Name).Inc()
		v.logger.Warn("live query failed", "collection", v.query.Collection, "error", err)
		v.state.Err = err
		v.publishLocked()
		return
	}

	observability.SnapshotsReceived.WithLabelValues(v.cfg.Name).Inc()

	items := make([]T, len(snap.Documents))
	for i, doc := range snap.Documents {
		items[i] = v.cfg.Decode(doc)
	}
	v.raw, v.hasRaw = items, true
	v.rawSeq++
	v.state.Err = nil
	v.startResolveLocked()
}

// startResolveLocked must be called with mu held
func (v *View[T]) startResolveLocked() {
	v.generation++
	gen, seq, items := v.generation, v.rawSeq, v.raw

	if v.cfg.Resolve == nil {
		v.applyResolvedLocked(seq, items)
		return
	}

	go v.resolve(gen, seq, items)
}

func (v *View[T]) resolve(gen, seq uint64, items []T) {
	out, err := v.cfg.Resolve(v.ctx, items)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	if gen != v.generation {
		observability.StaleResolutions.WithLabelValues(v.cfg.Name).Inc()
		return
	}
	if err != nil {
		v.logger.Debug("resolution failed, publishing unresolved items", "error", err)
		out = items
	}
	v.applyResolvedLocked(seq, out)
}

// applyResolvedLocked must be called with mu held
func (v *View[T]) applyResolvedLocked(seq uint64, items []T) {
	v.resolved, v.ready = items, true
	if seq > v.appliedSeq {
		v.appliedSeq = seq
		for id, list := range v.overlays {
			kept := list[:0]
			for _, o := range list {
				if o.seq >= seq {
					kept = append(kept, o)
				}
			}
			if len(kept) == 0 {
				delete(v.overlays, id)
			} else {
				v.overlays[id] = kept
			}
		}
	}
	v.recomputeLocked()
}

// recomputeLocked must be called with mu held
func (v *View[T]) recomputeLocked() {
	if !v.ready {
		return
	}

	names := make([]string, 0, len(v.predicates))
	for name := range v.predicates {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]T, 0, len(v.resolved))
	for _, item := range v.resolved {
		for _, o := range v.overlays[v.cfg.ID(item)] {
			item = o.fn(item)
		}
		keep := true
		for _, name := range names {
			if !v.predicates[name](item) {
				keep = false
				break
			}
		}
		if keep {
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if v.cfg.Less != nil {
			if v.cfg.Less(items[i], items[j]) {
				return true
			}
			if v.cfg.Less(items[j], items[i]) {
				return false
			}
		}
		return v.cfg.ID(items[i]) < v.cfg.ID(items[j])
	})

	v.state.Items = items
	v.state.Ready = true
	v.publishLocked()
}

// publishLocked must be called with mu held
func (v *View[T]) publishLocked() {
	if v.closed {
		return
	}
	v.state.Version++
	observability.ViewsPublished.WithLabelValues(v.cfg.Name).Inc()
	select {
	case v.changes <- struct{}{}:
	default:
	}
}

// SetPredicate installs or replaces a named filter and re-filters the
// retained snapshot
func (v *View[T]) SetPredicate(name string, fn func(T) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.predicates[name] = fn
	v.recomputeLocked()
}

// SetPredicates replaces every named filter at once and republishes a
// single time. A nil function removes that filter.
func (v *View[T]) SetPredicates(fns map[string]func(T) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	predicates := make(map[string]func(T) bool, len(fns))
	for name, fn := range fns {
		if fn != nil {
			predicates[name] = fn
		}
	}
	v.predicates = predicates
	v.recomputeLocked()
}

// ClearPredicate removes a named filter
func (v *View[T]) ClearPredicate(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if _, ok := v.predicates[name]; !ok {
		return
	}
	delete(v.predicates, name)
	v.recomputeLocked()
}

// Patch overlays a local change on one item until the next server snapshot
// is applied. The returned function removes the overlay if it is still in
// place.
func (v *View[T]) Patch(id string, fn func(T) T) (undo func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return func() {}
	}

	v.nextToken++
	token := v.nextToken
	v.overlays[id] = append(v.overlays[id], overlay[T]{token: token, seq: v.rawSeq, fn: fn})
	v.recomputeLocked()

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.closed {
			return
		}
		list := v.overlays[id]
		for i, o := range list {
			if o.token == token {
				v.overlays[id] = append(list[:i:i], list[i+1:]...)
				if len(v.overlays[id]) == 0 {
					delete(v.overlays, id)
				}
				v.recomputeLocked()
				return
			}
		}
	}
}

// Reresolve runs resolution again over the retained snapshot
func (v *View[T]) Reresolve() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || !v.hasRaw {
		return
	}
	v.startResolveLocked()
}

// Lookup returns a published item by id
func (v *View[T]) Lookup(id string) (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, item := range v.state.Items {
		if v.cfg.ID(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// State returns the latest published state
func (v *View[T]) State() State[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.state
	s.Items = append([]T(nil), v.state.Items...)
	return s
}

// Changes signals after each publish. Signals coalesce; read State for the
// current value. The channel is closed by Close.
func (v *View[T]) Changes() <-chan struct{} {
	return v.changes
}

// Close releases the subscription and cancels in-flight resolution. It is
// safe to call more than once; nothing is published after it returns.
func (v *View[T]) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.cancel()
	sub := v.sub
	v.sub = nil
	close(v.changes)
	v.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}
