package events

// replay remembers the most recent notified value so that late listeners
// can be brought up to date. Callers must hold the owning event's lock.
type replay[T any] struct {
	enabled bool
	last    T
	has     bool
}

func (r *replay[T]) record(value T) {
	if !r.enabled {
		return
	}
	r.last = value
	r.has = true
}

func (r *replay[T]) pending() (T, bool) {
	if !r.enabled || !r.has {
		var zero T
		return zero, false
	}
	return r.last, true
}

func (r *replay[T]) reset() {
	var zero T
	r.last = zero
	r.has = false
}
