// Package interp turns the discrete per-tick view states of predicted
// entities into continuously advancing render values, and blends out the
// visual error introduced by reconciliation.
package interp

// LerpFunc blends from toward to by t in [0, 1].
type LerpFunc[T any] func(from, to T, t float64) T

// Buffer queues view samples and plays them back at a fixed virtual rate of
// one sample per step, independent of the render frame rate. Playback starts
// only once depth samples are buffered and stalls when the queue runs dry
// until it has refilled to depth again.
type Buffer[T any] struct {
	lerp     LerpFunc[T]
	step     float64
	depth    int
	maxDepth int

	samples []T
	from    T
	timer   float64
	playing bool
}

// NewBuffer creates a buffer positioned at initial. depth is raised to 2 if
// lower.
func NewBuffer[T any](lerp LerpFunc[T], step float64, depth int, initial T) *Buffer[T] {
	if depth < 2 {
		depth = 2
	}
	return &Buffer[T]{
		lerp:     lerp,
		step:     step,
		depth:    depth,
		maxDepth: depth * 3,
		from:     initial,
	}
}

// Depth returns the number of samples required before playback starts.
func (b *Buffer[T]) Depth() int { return b.depth }

// Len returns the number of queued samples.
func (b *Buffer[T]) Len() int { return len(b.samples) }

// Playing reports whether playback is advancing.
func (b *Buffer[T]) Playing() bool { return b.playing }

// Add queues a sample. When the queue grows past three times the target
// depth the oldest samples are consumed immediately to catch up.
func (b *Buffer[T]) Add(sample T) {
	b.samples = append(b.samples, sample)
	for len(b.samples) > b.maxDepth {
		b.from = b.pop()
	}
}

// Advance moves playback forward by dt seconds and returns the current value.
func (b *Buffer[T]) Advance(dt float64) T {
	if !b.playing {
		if len(b.samples) < b.depth {
			return b.from
		}
		b.playing = true
		b.timer = 0
	}

	b.timer += dt
	for b.timer >= b.step && len(b.samples) > 0 {
		b.from = b.pop()
		b.timer -= b.step
	}

	if len(b.samples) == 0 {
		b.playing = false
		b.timer = 0
		return b.from
	}

	t := b.timer / b.step
	if t > 1 {
		t = 1
	}
	return b.lerp(b.from, b.samples[0], t)
}

// Teleport drops every queued sample and jumps to value.
func (b *Buffer[T]) Teleport(value T) {
	clear(b.samples)
	b.samples = b.samples[:0]
	b.from = value
	b.timer = 0
	b.playing = false
}

func (b *Buffer[T]) pop() T {
	s := b.samples[0]
	var zero T
	b.samples[0] = zero
	b.samples = b.samples[1:]
	return s
}
