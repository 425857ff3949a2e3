package prebuilt

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/yohamta/donburi"

	"github.com/automoto/rewind/physics"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/interp"
	"github.com/automoto/rewind/shared/gamemath"
)

// MoverConfig holds the movement constants, in pixels per 60 Hz sub-step.
type MoverConfig struct {
	JumpSpeed    float64
	MaxSpeed     float64
	Acceleration float64
	Friction     float64
}

func DefaultMoverConfig() MoverConfig {
	return MoverConfig{
		JumpSpeed:    15,
		MaxSpeed:     6,
		Acceleration: 0.75,
		Friction:     0.5,
	}
}

type MoverInput struct {
	Direction int8
	Jump      bool
}

type MoverState struct {
	BodyState
	// JumpHeld makes jumping edge-triggered.
	JumpHeld bool
	Facing   int8
}

// Mover walks and jumps a physics body from player input.
type Mover struct {
	Config  MoverConfig
	Capture func(in *MoverInput)

	binding
	smooth *interp.Smoother
}

func NewMover(cfg MoverConfig, body *physics.Body, entry *donburi.Entry) *Mover {
	return &Mover{
		Config:  cfg,
		binding: binding{body: body, entry: entry},
		smooth:  interp.NewSmoother(interp.DefaultPositionSettings(), interp.DefaultRotationSettings()),
	}
}

func (m *Mover) InitialState() MoverState {
	return MoverState{Facing: 1}
}

func (m *Mover) Simulate(_ prediction.Context, in MoverInput, s *MoverState, delta float64) {
	steps := subSteps(delta)
	if in.Direction != 0 {
		s.Facing = in.Direction
	}
	s.VX = gamemath.Accelerate(s.VX, in.Direction, m.Config.Acceleration*steps, m.Config.MaxSpeed)
	if in.Jump && !s.JumpHeld && s.OnGround {
		s.VY = -m.Config.JumpSpeed
		s.OnGround = false
	}
	s.JumpHeld = in.Jump
	if s.OnGround {
		s.VX = gamemath.ApplyFriction(s.VX, m.Config.Friction*steps)
	}
	m.push(s.BodyState)
}

func (m *Mover) CaptureInput(in *MoverInput) {
	if m.Capture != nil {
		m.Capture(in)
	}
}

func (m *Mover) SanitizeInput(in *MoverInput) {
	in.Direction = gamemath.SignOf(float64(in.Direction), 0)
}

func (m *Mover) PullState(s *MoverState) { m.pull(&s.BodyState) }
func (m *Mover) PushState(s MoverState)  { m.push(s.BodyState) }

func (m *Mover) Interpolate(from, to MoverState, t float64) MoverState {
	out := to
	out.BodyState = lerpBody(from.BodyState, to.BodyState, t)
	return out
}

func (m *Mover) CorrectView(s *MoverState, delta float64, accumulate bool) {
	m.smoothed(m.smooth, &s.BodyState, delta, accumulate)
}

func (m *Mover) RecordView(s MoverState) { m.recorded(m.smooth, s.BodyState) }

func (m *Mover) ResetView() { m.smooth.Reset() }

func (m *Mover) UpdateView(view MoverState, _ *MoverState) {
	m.render(view.BodyState, mgl64.QuatIdent())
}

// Smoother exposes the reconciliation smoother, mostly for diagnostics.
func (m *Mover) Smoother() *interp.Smoother { return m.smooth }

// Center returns the middle of the body in state s.
func (m *Mover) Center(s MoverState) mgl64.Vec3 {
	w, h := m.body.Size()
	return s.Center(w, h)
}
