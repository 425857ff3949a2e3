// Package inputqueue buffers remote input frames on the server with low and
// high watermarks to absorb network jitter.
package inputqueue

// Queue is a FIFO of input frames from one remote participant. Its depth is
// kept at or below max; on overflow the oldest frames are discarded until
// depth equals min, bounding the latency a burst can add. While waiting the
// queue refuses consumption until it has refilled to min.
type Queue[T any] struct {
	items   []T
	head    int
	min     int
	max     int
	waiting bool
}

// New creates an empty queue in the waiting state.
func New[T any](min, max int) *Queue[T] {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return &Queue[T]{min: min, max: max, waiting: true}
}

// Min returns the low watermark.
func (q *Queue[T]) Min() int { return q.min }

// Max returns the high watermark.
func (q *Queue[T]) Max() int { return q.max }

// Count returns the number of buffered frames.
func (q *Queue[T]) Count() int {
	return len(q.items) - q.head
}

// Waiting reports whether the queue is refilling after starvation.
func (q *Queue[T]) Waiting() bool {
	return q.waiting
}

// Push appends a frame and returns how many old frames were discarded to
// respect the high watermark.
func (q *Queue[T]) Push(item T) int {
	q.items = append(q.items, item)

	dropped := 0
	if q.Count() > q.max {
		dropped = q.Count() - q.min
		q.discard(dropped)
	}

	if q.waiting && q.Count() >= q.min {
		q.waiting = false
	}
	return dropped
}

// Ready reports whether a frame may be consumed this tick. A queue that has
// fallen below its low watermark enters the waiting state.
func (q *Queue[T]) Ready() bool {
	if q.Count() < q.min {
		q.waiting = true
	}
	return !q.waiting && q.Count() > 0
}

// Peek returns the oldest frame without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if q.Count() == 0 {
		return zero, false
	}
	return q.items[q.head], true
}

// Pop removes and returns the oldest frame.
func (q *Queue[T]) Pop() (T, bool) {
	item, ok := q.Peek()
	if !ok {
		return item, false
	}
	q.discard(1)
	return item, true
}

// Clear drops every frame and returns the queue to the waiting state.
func (q *Queue[T]) Clear() {
	q.items = q.items[:0]
	q.head = 0
	q.waiting = true
}

func (q *Queue[T]) discard(n int) {
	var zero T
	for i := 0; i < n; i++ {
		q.items[q.head] = zero
		q.head++
	}
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
}
