// ABOUTME: Typed event bus with ordered, optionally filtered subscribers
// ABOUTME: Subscribe/unsubscribe are goroutine-safe; delivery is synchronous in subscription order

package eventbus

import "sync"

// Handler is a callback function for events.
type Handler[T any] func(T)

type subscription[T any] struct {
	id      int
	accept  func(T) bool
	handler Handler[T]
}

// Bus is a typed event bus that delivers events to registered handlers.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   []subscription[T]
	nextID int
}

// New creates a new event bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers a handler for every event and returns an unsubscribe
// function. Calling the unsubscribe function more than once is a no-op.
func (b *Bus[T]) Subscribe(handler Handler[T]) func() {
	return b.SubscribeWhen(nil, handler)
}

// SubscribeWhen registers a handler that only receives events for which
// accept returns true. A nil accept matches everything.
func (b *Bus[T]) SubscribeWhen(accept func(T) bool, handler Handler[T]) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription[T]{id: id, accept: accept, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[T]) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all matching handlers.
// Handlers are called synchronously in the order they subscribed.
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	// Snapshot to avoid holding the lock during callbacks; handlers may
	// subscribe or unsubscribe while being called.
	snapshot := make([]subscription[T], len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	for _, s := range snapshot {
		if s.accept != nil && !s.accept(event) {
			continue
		}
		s.handler(event)
	}
}

// Count returns the number of registered handlers.
func (b *Bus[T]) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
