package prediction

import (
	"github.com/automoto/rewind/prediction/codec"
)

// Entity is a registered unit of simulation. Entities are built with
// NewEntity, NewInputEntity or NewStateless around a behavior value whose
// optional capabilities (the interfaces below) are detected when the entity
// is created.
type Entity interface {
	ID() ComponentID
	Owner() PlayerID
	HasInput() bool
	HasState() bool

	setup(m *Manager, id ComponentID, owner PlayerID)
	setOwner(owner PlayerID)
	isEventHandler() bool

	prepareInput(isServer, isController bool, tick uint64)
	simulateTick(tick uint64, delta float64)
	postSimulate(tick uint64, delta float64)
	pullState()
	saveState(tick uint64)
	rollback(tick uint64) error

	writeState(target PlayerID, p *codec.Packer) (bool, error)
	readState(tick uint64, p *codec.Packer) error
	writeInput(tick uint64, target PlayerID, p *codec.Packer, reliable bool) error
	readInput(tick uint64, sender PlayerID, p *codec.Packer, reliable bool) error
	queueInput(sender PlayerID, p *codec.Packer) error

	recordView()
	updateViewState(delta float64, accumulate bool)
	updateView(dt float64)
	resetInterpolation()
	teardown()
}

// Simulator advances a state by one tick.
type Simulator[S any] interface {
	Simulate(ctx Context, state *S, delta float64)
}

// InputSimulator advances a state by one tick using that tick's input.
type InputSimulator[I, S any] interface {
	Simulate(ctx Context, input I, state *S, delta float64)
}

// StatelessSimulator runs every tick but keeps no state of its own.
type StatelessSimulator interface {
	Simulate(ctx Context, delta float64)
}

// InitialStater supplies the state an entity starts from. Without it the
// zero value is used.
type InitialStater[S any] interface {
	InitialState() S
}

// InputCapturer fills the local input for the current tick.
type InputCapturer[I any] interface {
	CaptureInput(input *I)
}

// InputSanitizer clamps an input before it is trusted.
type InputSanitizer[I any] interface {
	SanitizeInput(input *I)
}

// InputExtrapolator clears the fields of a repeated input that must not be
// guessed, such as absolute look angles.
type InputExtrapolator[I any] interface {
	ModifyExtrapolatedInput(input *I)
}

// InputDefaulter supplies the structural default input used when no real or
// extrapolated input is available. Without it the zero value is used.
type InputDefaulter[I any] interface {
	DefaultInput() I
}

// Interpolator blends two view states.
type Interpolator[S any] interface {
	Interpolate(from, to S, t float64) S
}

// Vector is implemented by states that form a vector space; they are
// interpolated linearly when no Interpolator is provided.
type Vector[S any] interface {
	Add(other S) S
	Sub(other S) S
	Scale(f float64) S
}

// ViewRenderer receives the interpolated view state every render frame
// together with the latest verified state, if any.
type ViewRenderer[S any] interface {
	UpdateView(view S, verified *S)
}

// EngineBinding copies state between the entity and the engine objects it
// drives (physics bodies, transforms).
type EngineBinding[S any] interface {
	PullState(state *S)
	PushState(state S)
}

// ViewCorrector adjusts the view sample produced after each tick, typically
// to blend out reconciliation error. RecordView is called with the
// prediction a rollback is about to replace; the CorrectView call that
// follows the replay accumulates the difference.
type ViewCorrector[S any] interface {
	CorrectView(state *S, delta float64, accumulate bool)
	RecordView(state S)
	ResetView()
}

// EventHandler reacts to events deferred during the physics step.
type EventHandler interface {
	PostSimulate(ctx Context, delta float64)
}

// SetupHook is called whenever the entity is registered, including when a
// pooled instance is reused.
type SetupHook interface {
	Setup(ctx Context, id ComponentID)
}

// TeardownHook is called when the entity is unregistered.
type TeardownHook interface {
	Teardown()
}

// Cloner is implemented by states holding references that must be deep
// copied when they are stored in history.
type Cloner[S any] interface {
	Clone() S
}

func cloneValue[S any](s S) S {
	if c, ok := any(s).(Cloner[S]); ok {
		return c.Clone()
	}
	return s
}
