// Package notify provides typed broadcast signals with cancellable
// subscription handles. Each event kind is its own Signal so subscribers
// never type-switch on payloads; cancelling one subscription never
// affects the others.
package notify

import (
	"sync"
	"sync/atomic"
)

// Subscription is a handle to an active signal subscription.
type Subscription interface {
	// Cancel permanently stops event delivery to this subscriber.
	// It is safe to call more than once.
	Cancel()

	// IsActive returns true if the subscription can still receive events.
	IsActive() bool
}

// subscription is the internal Subscription implementation.
type subscription struct {
	cancelled atomic.Bool
	remove    func()
}

// Cancel permanently cancels the subscription.
func (s *subscription) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.remove()
}

// IsActive returns true if the subscription has not been cancelled.
func (s *subscription) IsActive() bool {
	return !s.cancelled.Load()
}

// Signal is a broadcast point for one event kind. Handlers run
// synchronously on the emitting goroutine, in subscription order;
// delivery order across subscribers for a single event is unspecified
// by contract even though the implementation is deterministic.
type Signal[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(T)
	order  []uint64
}

// NewSignal creates an empty signal.
func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{subs: make(map[uint64]func(T))}
}

// Subscribe registers a handler and returns its subscription handle.
func (s *Signal[T]) Subscribe(handler func(T)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs[id] = handler
	s.order = append(s.order, id)

	return &subscription{remove: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}}
}

// Emit delivers the value to every active subscriber.
// Subscribers observe events in the order they were emitted.
func (s *Signal[T]) Emit(value T) {
	s.mu.RLock()
	handlers := make([]func(T), 0, len(s.subs))
	for _, id := range s.order {
		if h, ok := s.subs[id]; ok {
			handlers = append(handlers, h)
		}
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(value)
	}
}

// Len returns the number of active subscriptions.
func (s *Signal[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Clear cancels every subscription on the signal.
func (s *Signal[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = make(map[uint64]func(T))
	s.order = nil
}
