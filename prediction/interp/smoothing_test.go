package interp

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tickDelta = 1.0 / 30

func at(x float64) Pose {
	return Pose{Position: mgl64.Vec3{x, 0, 0}, Rotation: mgl64.QuatIdent()}
}

func primed() *Smoother {
	s := NewSmoother(DefaultPositionSettings(), DefaultRotationSettings())
	s.Correct(at(0), tickDelta, false)
	return s
}

func TestSmallCorrectionIsBlendedOut(t *testing.T) {
	s := primed()

	view := s.Correct(at(0.5), tickDelta, true)
	assert.InDelta(t, 0.0, view.Position.X(), 1e-9, "view starts at the old prediction")

	err := s.PositionError()
	require.Greater(t, err, 0.0)
	require.Less(t, err, 0.5)

	prev := err
	for i := 0; i < 5; i++ {
		s.Correct(at(0.5), tickDelta, false)
		assert.Less(t, s.PositionError(), prev)
		prev = s.PositionError()
	}
}

func TestErrorBelowSkipThresholdStaysZero(t *testing.T) {
	s := primed()
	view := s.Correct(at(0.01), tickDelta, true)

	assert.InDelta(t, 0.0, s.PositionError(), 1e-12)
	assert.InDelta(t, 0.01, view.Position.X(), 1e-12)
}

func TestErrorNeverExceedsTeleportThreshold(t *testing.T) {
	s := primed()
	settings := DefaultPositionSettings()

	x := 0.0
	for i := 0; i < 50; i++ {
		x += 1.7
		view := s.Correct(at(x), tickDelta, true)
		assert.LessOrEqual(t, s.PositionError(), settings.TeleportAbove)
		if s.PositionError() == 0 {
			assert.InDelta(t, x, view.Position.X(), 1e-9)
		}
	}
}

func TestLargeCorrectionSnaps(t *testing.T) {
	s := primed()
	view := s.Correct(at(20), tickDelta, true)

	assert.Equal(t, 0.0, s.PositionError())
	assert.InDelta(t, 20, view.Position.X(), 1e-12)
}

func TestRotationErrorBlendsTowardIdentity(t *testing.T) {
	s := primed()
	rotated := at(0)
	rotated.Rotation = mgl64.QuatRotate(mgl64.DegToRad(20), mgl64.Vec3{0, 1, 0})

	s.Correct(rotated, tickDelta, true)
	first := s.RotationError()
	require.Greater(t, first, 0.0)
	require.Less(t, first, 20.0+1e-9)

	s.Correct(rotated, tickDelta, false)
	assert.Less(t, s.RotationError(), first)
}

// The first view after a correction about another axis must still be the
// pose shown before it.
func TestRotationCorrectionStartsFromOldView(t *testing.T) {
	s := NewSmoother(DefaultPositionSettings(), DefaultRotationSettings())
	old := at(0)
	old.Rotation = mgl64.QuatRotate(mgl64.DegToRad(90), mgl64.Vec3{1, 0, 0})
	s.Correct(old, tickDelta, false)

	corrected := old
	corrected.Rotation = old.Rotation.Mul(mgl64.QuatRotate(mgl64.DegToRad(20), mgl64.Vec3{0, 1, 0}))
	view := s.Correct(corrected, tickDelta, true)

	assert.InDelta(t, 0, quatAngle(old.Rotation.Inverse().Mul(view.Rotation)), 1e-6)
	remaining := s.RotationError()
	require.Greater(t, remaining, 0.0)
	require.Less(t, remaining, 20.0)

	// The next view moves toward the prediction by what was blended out.
	view = s.Correct(corrected, tickDelta, false)
	toTarget := quatAngle(view.Rotation.Inverse().Mul(corrected.Rotation))
	assert.InDelta(t, remaining, toTarget, 1e-6)
}

func TestResetTeleportsOnNextCorrection(t *testing.T) {
	s := primed()
	s.Correct(at(0.5), tickDelta, true)
	require.Greater(t, s.PositionError(), 0.0)

	s.Reset()
	assert.Equal(t, 0.0, s.PositionError())
	view := s.Correct(at(3), tickDelta, false)
	assert.InDelta(t, 3, view.Position.X(), 1e-12)
}

func TestLerpPose(t *testing.T) {
	p := LerpPose(at(0), at(10), 0.25)
	assert.InDelta(t, 2.5, p.Position.X(), 1e-12)
}
