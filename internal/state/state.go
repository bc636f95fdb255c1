// Package state provides an observable state holder.
//
// A Holder separates staged from committed state: an operation takes the
// operation lock, stages any number of mutations, and publishes exactly
// one snapshot when it commits. Observers never see a partially applied
// multi-step operation.
package state

import (
	"sync"
)

// Holder holds a snapshot value of type T and notifies subscribers on
// every commit. T must be a value type whose fields are replaced, not
// mutated through, by staging functions.
type Holder[T any] struct {
	opMu   sync.Mutex
	staged T

	mu        sync.RWMutex
	committed T

	subMu  sync.Mutex
	subs   map[int]chan T
	nextID int
}

// NewHolder creates a holder with the given initial committed value.
func NewHolder[T any](initial T) *Holder[T] {
	return &Holder[T]{
		committed: initial,
		subs:      make(map[int]chan T),
	}
}

// Get returns the committed value.
func (h *Holder[T]) Get() T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.committed
}

// BeginOp acquires the operation lock and resets the staged value to the
// committed one. Every BeginOp must be paired with EndOp.
func (h *Holder[T]) BeginOp() {
	h.opMu.Lock()
	h.mu.RLock()
	h.staged = h.committed
	h.mu.RUnlock()
}

// EndOp releases the operation lock. Staged changes that were not
// committed are discarded.
func (h *Holder[T]) EndOp() {
	h.opMu.Unlock()
}

// Stage applies a mutation to the staged value. Only valid between
// BeginOp and EndOp.
func (h *Holder[T]) Stage(fn func(*T)) {
	fn(&h.staged)
}

// Staged returns the current staged value. Only valid between BeginOp
// and EndOp.
func (h *Holder[T]) Staged() T {
	return h.staged
}

// Commit publishes the staged value to all subscribers and makes it the
// committed value.
func (h *Holder[T]) Commit() {
	h.mu.Lock()
	h.committed = h.staged
	snapshot := h.committed
	h.mu.Unlock()

	h.subMu.Lock()
	defer h.subMu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- snapshot:
		default:
			// Slow subscribers miss intermediate snapshots rather than
			// blocking a commit.
		}
	}
}

// Subscribe registers a new observer. The returned cancel function
// removes it.
func (h *Holder[T]) Subscribe() (<-chan T, func()) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan T, 16)
	h.subs[id] = ch

	cancel := func() {
		h.subMu.Lock()
		defer h.subMu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
