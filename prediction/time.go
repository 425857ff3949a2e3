package prediction

// TimeState counts simulated ticks and holds the global time scale.
type TimeState struct {
	Ticks uint64
	Scale float64
}

// Time is the built-in system that scales every entity's delta.
type Time struct {
	entity *Predicted[NoInput, TimeState]
}

func newTime() *Time {
	t := &Time{}
	t.entity = NewEntity[TimeState](t)
	return t
}

func (t *Time) InitialState() TimeState { return TimeState{Scale: 1} }

func (t *Time) Simulate(_ Context, state *TimeState, _ float64) {
	state.Ticks++
}

func (t *Time) Interpolate(_, to TimeState, _ float64) TimeState { return to }

// Scale returns the current time scale, never negative.
func (t *Time) Scale() float64 {
	return max(t.entity.full.State.Scale, 0)
}

// Ticks returns the number of simulated ticks, replays included.
func (t *Time) Ticks() uint64 {
	return t.entity.full.State.Ticks
}

// SetScale changes the time scale from the next tick on.
func (t *Time) SetScale(ctx Context, scale float64) error {
	if !ctx.IsSimulating() {
		return ErrNotSimulating
	}
	t.entity.full.State.Scale = max(scale, 0)
	return nil
}
