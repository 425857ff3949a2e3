package prebuilt

import (
	"github.com/automoto/rewind/prediction"
)

// Movement phases, the node indices of Phases.Machine.
const (
	PhaseGround = iota
	PhaseAir
)

// Phases follows whether a player stands on the ground or is airborne. It
// runs after the mover within the tick and switches on the grounded flag
// the last physics step left in the mover's state.
type Phases struct {
	Machine *prediction.StateMachine

	movement *prediction.Predicted[MoverInput, MoverState]
}

func NewPhases(movement *prediction.Predicted[MoverInput, MoverState]) *Phases {
	p := &Phases{movement: movement}
	p.Machine = prediction.NewStateMachine(groundPhase{p}, airPhase{p})
	return p
}

// Phase returns the running phase.
func (p *Phases) Phase() int { return p.Machine.Current() }

func (p *Phases) grounded() bool { return p.movement.State().OnGround }

type groundPhase struct{ p *Phases }

func (groundPhase) Enter(prediction.Context) {}
func (groundPhase) Exit(prediction.Context)  {}

func (g groundPhase) Simulate(ctx prediction.Context, _ float64) {
	if !g.p.grounded() {
		_ = g.p.Machine.SetState(ctx, PhaseAir)
	}
}

type airPhase struct{ p *Phases }

func (airPhase) Enter(prediction.Context) {}
func (airPhase) Exit(prediction.Context)  {}

func (a airPhase) Simulate(ctx prediction.Context, _ float64) {
	if a.p.grounded() {
		_ = a.p.Machine.SetState(ctx, PhaseGround)
	}
}
