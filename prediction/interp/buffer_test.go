package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lerpFloat(from, to, t float64) float64 { return from + (to-from)*t }

func TestBufferWaitsForDepthBeforePlaying(t *testing.T) {
	b := NewBuffer(lerpFloat, 0.1, 2, 0)

	b.Add(1)
	assert.Equal(t, 0.0, b.Advance(0.05))
	assert.False(t, b.Playing())

	b.Add(2)
	got := b.Advance(0.05)
	assert.True(t, b.Playing())
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestBufferAdvancesOneSamplePerStep(t *testing.T) {
	b := NewBuffer(lerpFloat, 0.1, 2, 0)
	for i := 1; i <= 4; i++ {
		b.Add(float64(i))
	}

	assert.InDelta(t, 0.5, b.Advance(0.05), 1e-9)
	assert.InDelta(t, 1.5, b.Advance(0.1), 1e-9)
	assert.InDelta(t, 2.5, b.Advance(0.1), 1e-9)
	assert.Equal(t, 2, b.Len())
}

func TestBufferStallsWhenDry(t *testing.T) {
	b := NewBuffer(lerpFloat, 0.1, 2, 0)
	b.Add(1)
	b.Add(2)

	got := b.Advance(0.25)
	assert.Equal(t, 2.0, got)
	assert.False(t, b.Playing())

	b.Add(3)
	assert.Equal(t, 2.0, b.Advance(0.1), "needs depth samples again")
}

func TestBufferDepthHasFloorOfTwo(t *testing.T) {
	b := NewBuffer(lerpFloat, 0.1, 0, 0)
	assert.Equal(t, 2, b.Depth())
}

func TestBufferCatchesUpWhenOverfilled(t *testing.T) {
	b := NewBuffer(lerpFloat, 0.1, 2, 0)
	for i := 1; i <= 10; i++ {
		b.Add(float64(i))
	}
	assert.Equal(t, 6, b.Len())
}

func TestBufferTeleport(t *testing.T) {
	b := NewBuffer(lerpFloat, 0.1, 2, 0)
	b.Add(1)
	b.Add(2)
	b.Advance(0.05)

	b.Teleport(42)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 42.0, b.Advance(0.1))
}
