package events

import (
	"sort"
	"sync"
)

// CallbackEvent provides pub/sub behavior with type-safe callbacks.
// Listeners run synchronously on the notifying goroutine, in registration order,
// so a Notify has fully taken effect by the time it returns.
type CallbackEvent[T any] struct {
	mu        sync.RWMutex
	listeners map[uint64]func(T)
	nextID    uint64
	replay    replay[T]
}

// NewCallbackEvent creates a new CallbackEvent.
// replayLast: new listeners are called immediately with the last notified value, if any.
func NewCallbackEvent[T any](replayLast bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{
		listeners: make(map[uint64]func(T)),
		replay:    replay[T]{enabled: replayLast},
	}
}

// Listen registers callback and returns a function that removes it again.
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("callback cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = callback
	last, ok := e.replay.pending()
	e.mu.Unlock()

	// outside the lock so the callback may call back into the event
	if ok {
		callback(last)
	}

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Notify calls every registered listener with value.
func (e *CallbackEvent[T]) Notify(value T) {
	e.mu.Lock()
	e.replay.record(value)
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	callbacks := make([]func(T), 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, e.listeners[id])
	}
	e.mu.Unlock()

	for _, callback := range callbacks {
		callback(value)
	}
}

// Reset forgets the remembered last value.
func (e *CallbackEvent[T]) Reset() {
	e.mu.Lock()
	e.replay.reset()
	e.mu.Unlock()
}

// ListenerCount returns the current number of registered listeners.
func (e *CallbackEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
