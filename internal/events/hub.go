// Package events provides a small per-component observer registry.
// Each engine owns its own hubs, one per event type, so engines stay
// independently testable and no global bus exists.
package events

import "sync"

// Hub fans an event out to its subscribers synchronously, in subscription
// order. A subscriber that panics is the subscriber's bug; the hub does not
// recover on its behalf.
type Hub[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(T)
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn and returns a function that removes it again.
// A nil fn is ignored and the returned unsubscribe is a no-op.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// Emit delivers v to every current subscriber. The subscriber list is
// snapshotted so callbacks may subscribe/unsubscribe without deadlocking.
func (h *Hub[T]) Emit(v T) {
	h.mu.RLock()
	fns := make([]func(T), 0, len(h.subs))
	for id := 0; id < h.nextID; id++ {
		if fn, ok := h.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len reports the current number of subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
