// internal/service/livesync/optimistic.go

package livesync

import (
	"context"
	"sync"

	"wimbli/internal/observability"
)

// Mutation is a user action applied locally before its remote write is
// confirmed. Apply, Confirm and Compensate must return new values rather
// than modify their arguments.
type Mutation[S any] struct {
	// Name labels the mutation in metrics
	Name string

	// Apply computes the tentative state
	Apply func(S) S

	// Issue performs the remote write
	Issue func(ctx context.Context) error

	// Confirm adjusts state after a successful write; optional
	Confirm func(S) S

	// Compensate restores state after a failed write. It receives the
	// current state and the state before Apply. When nil the original state
	// is restored.
	Compensate func(current, original S) S
}

// Optimistic holds local state that user actions change ahead of the
// backend
type Optimistic[S any] struct {
	mu      sync.Mutex
	state   S
	version uint64
	changes chan struct{}
	closed  bool
}

// NewOptimistic creates a new holder with an initial state
func NewOptimistic[S any](initial S) *Optimistic[S] {
	return &Optimistic[S]{
		state:   initial,
		changes: make(chan struct{}, 1),
	}
}

// Run applies m, issues its write and then confirms or compensates. The
// write's error is returned unchanged.
func (o *Optimistic[S]) Run(ctx context.Context, m Mutation[S]) error {
	o.mu.Lock()
	original := o.state
	if m.Apply != nil {
		o.setLocked(m.Apply(original))
	}
	o.mu.Unlock()

	err := m.Issue(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		observability.OptimisticRollbacks.WithLabelValues(m.Name).Inc()
		if m.Compensate != nil {
			o.setLocked(m.Compensate(o.state, original))
		} else {
			o.setLocked(original)
		}
		return err
	}

	if m.Confirm != nil {
		o.setLocked(m.Confirm(o.state))
	}
	return nil
}

// Update changes local state with no remote effect
func (o *Optimistic[S]) Update(fn func(S) S) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setLocked(fn(o.state))
}

// State returns the current state
func (o *Optimistic[S]) State() S {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Version increases on every state change
func (o *Optimistic[S]) Version() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.version
}

// Changes signals after each state change; closed by Close
func (o *Optimistic[S]) Changes() <-chan struct{} {
	return o.changes
}

// Close stops change notifications. State can still be read.
func (o *Optimistic[S]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.changes)
}

func (o *Optimistic[S]) setLocked(s S) {
	o.state = s
	o.version++
	if o.closed {
		return
	}
	select {
	case o.changes <- struct{}{}:
	default:
	}
}
