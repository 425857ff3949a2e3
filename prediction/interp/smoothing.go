package interp

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tanema/gween/ease"
)

// Pose is a position and orientation in world space.
type Pose struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// IdentityPose returns a pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Rotation: mgl64.QuatIdent()}
}

// LerpPose blends position linearly and rotation spherically.
func LerpPose(from, to Pose, t float64) Pose {
	return Pose{
		Position: from.Position.Add(to.Position.Sub(from.Position).Mul(t)),
		Rotation: mgl64.QuatSlerp(from.Rotation, to.Rotation, t),
	}
}

// Settings tune how one error channel (position or rotation) is corrected.
// Errors above TeleportAbove snap, errors below SkipBelow are discarded, and
// anything in between decays at a rate picked from [RateMin, RateMax] by
// where the error sits in [BlendMin, BlendMax]. Rotation values are degrees.
type Settings struct {
	RateMin, RateMax   float64
	BlendMin, BlendMax float64
	SkipBelow          float64
	TeleportAbove      float64

	// Curve shapes the blend factor; nil means linear.
	Curve ease.TweenFunc
}

func DefaultPositionSettings() Settings {
	return Settings{
		RateMin: 3.3, RateMax: 10,
		BlendMin: 0.25, BlendMax: 4,
		SkipBelow: 0.025, TeleportAbove: 5,
		Curve: ease.Linear,
	}
}

func DefaultRotationSettings() Settings {
	return Settings{
		RateMin: 3.3, RateMax: 10,
		BlendMin: 5, BlendMax: 30,
		SkipBelow: 1.5, TeleportAbove: 52,
		Curve: ease.Linear,
	}
}

func (s Settings) rate(err, delta float64) float64 {
	t := clamp01(inverseLerp(s.BlendMin, s.BlendMax, err))
	if s.Curve != nil {
		t = float64(s.Curve(float32(t), 0, 1, 1))
	}
	return (s.RateMin + (s.RateMax-s.RateMin)*t) * delta
}

// Smoother accumulates the jump between the pose predicted before a
// rollback and the corrected one, then returns view poses that start where
// the old prediction was and converge on the corrected chain over the
// following ticks.
type Smoother struct {
	Position Settings
	Rotation Settings

	posErr   mgl64.Vec3
	rotErr   mgl64.Quat
	old      Pose
	primed   bool
	teleport bool
}

func NewSmoother(position, rotation Settings) *Smoother {
	return &Smoother{
		Position: position,
		Rotation: rotation,
		rotErr:   mgl64.QuatIdent(),
	}
}

// Reset forgets the accumulated error. The next correction primes the
// smoother with the prediction it is given.
func (s *Smoother) Reset() {
	s.posErr = mgl64.Vec3{}
	s.rotErr = mgl64.QuatIdent()
	s.old = Pose{}
	s.primed = false
	s.teleport = true
}

// Teleport makes the next correction snap to the prediction.
func (s *Smoother) Teleport() {
	s.teleport = true
}

// PositionError returns the magnitude of the position error still to blend.
func (s *Smoother) PositionError() float64 {
	return s.posErr.Len()
}

// RotationError returns the angle in degrees of the rotation error still to
// blend.
func (s *Smoother) RotationError() float64 {
	return quatAngle(s.rotErr)
}

// Record notes the prediction a correction is about to replace without
// advancing the blend. The next accumulating Correct measures the error
// from it.
func (s *Smoother) Record(prediction Pose) {
	s.old = prediction
	s.primed = true
}

// Correct takes the current prediction and returns the pose to show. With
// accumulate set, the difference between this prediction and the previous
// one is treated as a correction and added to the error.
func (s *Smoother) Correct(prediction Pose, delta float64, accumulate bool) Pose {
	if !s.primed {
		s.primed = true
		s.teleport = false
		s.old = prediction
		return prediction
	}

	if accumulate {
		s.posErr = s.posErr.Add(prediction.Position.Sub(s.old.Position))
		s.rotErr = prediction.Rotation.Mul(s.old.Rotation.Inverse()).Mul(s.rotErr).Normalize()
	}

	posErr := s.posErr.Len()
	rotErr := quatAngle(s.rotErr)

	snapPos := posErr > s.Position.TeleportAbove || posErr < s.Position.SkipBelow
	snapRot := rotErr > s.Rotation.TeleportAbove || rotErr < s.Rotation.SkipBelow
	if s.teleport {
		snapPos, snapRot = true, true
		s.teleport = false
	}

	view := prediction
	if snapPos {
		s.posErr = mgl64.Vec3{}
	} else {
		view.Position = prediction.Position.Sub(s.posErr)

		correction := s.posErr.Mul(s.Position.rate(posErr, delta))
		corrLen := correction.Len()
		if corrLen < s.Position.SkipBelow && posErr > s.Position.SkipBelow {
			correction = s.posErr.Normalize().Mul(s.Position.SkipBelow)
		} else if corrLen > posErr {
			correction = s.posErr
		}
		s.posErr = s.posErr.Sub(correction)
	}

	if snapRot {
		s.rotErr = mgl64.QuatIdent()
	} else {
		view.Rotation = s.rotErr.Inverse().Mul(prediction.Rotation)
		amount := clamp01(s.Rotation.rate(rotErr, delta))
		s.rotErr = mgl64.QuatSlerp(s.rotErr, mgl64.QuatIdent(), amount)
	}

	s.old = prediction
	return view
}

// quatAngle returns the rotation angle of q in degrees.
func quatAngle(q mgl64.Quat) float64 {
	w := math.Abs(q.W)
	if w > 1 {
		w = 1
	}
	return mgl64.RadToDeg(2 * math.Acos(w))
}

func inverseLerp(a, b, v float64) float64 {
	if a == b {
		return 0
	}
	return (v - a) / (b - a)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
