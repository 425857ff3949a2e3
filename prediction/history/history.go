// Package history provides the tick-keyed ring buffer that backs every
// predicted entity's state and input history.
package history

// entry is one ring slot. ok is false until the slot is written.
type entry[T any] struct {
	tick  uint64
	value T
	ok    bool
}

// History is a fixed-capacity ring of values keyed by tick. A slot is
// addressed by tick % capacity and validated against the stored tick, so a
// read never returns a value written for a different tick.
type History[T any] struct {
	entries []entry[T]
	latest  uint64
	written bool
	dispose func(T)
}

// New creates a history retaining the last capacity ticks.
func New[T any](capacity int) *History[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &History[T]{entries: make([]entry[T], capacity)}
}

// OnEvict registers a function called with every value that is overwritten,
// removed or cleared.
func (h *History[T]) OnEvict(fn func(T)) {
	h.dispose = fn
}

// Capacity returns the number of ticks the ring retains.
func (h *History[T]) Capacity() int {
	return len(h.entries)
}

// Latest returns the highest tick written so far.
func (h *History[T]) Latest() (uint64, bool) {
	return h.latest, h.written
}

// oldest returns the lowest tick still inside the retention window.
func (h *History[T]) oldest() uint64 {
	c := uint64(len(h.entries))
	if h.latest+1 < c {
		return 0
	}
	return h.latest + 1 - c
}

// Write stores value for tick, overwriting the slot's previous occupant.
// Ticks older than the retention window are ignored and Write reports false.
func (h *History[T]) Write(tick uint64, value T) bool {
	if h.written && tick < h.oldest() {
		return false
	}
	if !h.written || tick > h.latest {
		h.latest = tick
		h.written = true
	}

	slot := &h.entries[tick%uint64(len(h.entries))]
	if slot.ok && h.dispose != nil {
		h.dispose(slot.value)
	}
	slot.tick = tick
	slot.value = value
	slot.ok = true
	return true
}

// Read returns the value last written for tick, or false when tick is
// outside the retention window or was never written.
func (h *History[T]) Read(tick uint64) (T, bool) {
	var zero T
	if !h.written || tick > h.latest || tick < h.oldest() {
		return zero, false
	}
	slot := h.entries[tick%uint64(len(h.entries))]
	if !slot.ok || slot.tick != tick {
		return zero, false
	}
	return slot.value, true
}

// TryGetClosest scans backward from tick to the oldest retained entry and
// returns the nearest hit together with its distance tick-found.
func (h *History[T]) TryGetClosest(tick uint64) (T, uint64, bool) {
	var zero T
	if !h.written {
		return zero, 0, false
	}
	start := tick
	if start > h.latest {
		start = h.latest
	}
	oldest := h.oldest()
	if start < oldest {
		return zero, 0, false
	}
	for t := start; ; t-- {
		if v, ok := h.Read(t); ok {
			return v, tick - t, true
		}
		if t == oldest {
			break
		}
	}
	return zero, 0, false
}

// Remove forgets the value stored for tick, if any.
func (h *History[T]) Remove(tick uint64) {
	slot := &h.entries[tick%uint64(len(h.entries))]
	if !slot.ok || slot.tick != tick {
		return
	}
	if h.dispose != nil {
		h.dispose(slot.value)
	}
	*slot = entry[T]{}
}

// Clear drops every entry and resets the latest tick.
func (h *History[T]) Clear() {
	for i := range h.entries {
		if h.entries[i].ok && h.dispose != nil {
			h.dispose(h.entries[i].value)
		}
		h.entries[i] = entry[T]{}
	}
	h.latest = 0
	h.written = false
}
