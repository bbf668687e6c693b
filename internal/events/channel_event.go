package events

import (
	"sort"
	"sync"
)

// ChannelEvent provides pub/sub behavior using channels.
// Sends never block: a listener whose channel is full misses that value.
type ChannelEvent[T any] struct {
	mu       sync.RWMutex
	channels map[uint64]chan<- T
	nextID   uint64
	replay   replay[T]
}

// NewChannelEvent creates a new ChannelEvent.
// replayLast: new listeners immediately receive the last notified value, if any.
func NewChannelEvent[T any](replayLast bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{
		channels: make(map[uint64]chan<- T),
		replay:   replay[T]{enabled: replayLast},
	}
}

// Listen registers ch and returns a function that removes it again.
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.channels[id] = ch
	last, ok := e.replay.pending()
	e.mu.Unlock()

	if ok {
		select {
		case ch <- last:
		default:
		}
	}

	return func() {
		e.mu.Lock()
		delete(e.channels, id)
		e.mu.Unlock()
	}
}

// Notify sends value to every registered channel in registration order.
func (e *ChannelEvent[T]) Notify(value T) {
	e.mu.Lock()
	e.replay.record(value)
	targets := e.snapshot()
	e.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- value:
		default:
		}
	}
}

// Reset forgets the remembered last value.
func (e *ChannelEvent[T]) Reset() {
	e.mu.Lock()
	e.replay.reset()
	e.mu.Unlock()
}

// ListenerCount returns the current number of registered listeners.
func (e *ChannelEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.channels)
}

// snapshot must be called with mu held.
func (e *ChannelEvent[T]) snapshot() []chan<- T {
	ids := make([]uint64, 0, len(e.channels))
	for id := range e.channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]chan<- T, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.channels[id])
	}
	return out
}
