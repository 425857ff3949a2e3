package prediction

import (
	"fmt"
	"math"

	"github.com/automoto/rewind/prediction/codec"
	"github.com/automoto/rewind/prediction/history"
	"github.com/automoto/rewind/prediction/interp"
)

type options struct {
	extrapolate  bool
	repeatFactor float64
}

// Option configures an entity.
type Option func(*options)

// WithoutExtrapolation makes remote-owned copies of the entity fall back to
// the default input instead of repeating the last known one.
func WithoutExtrapolation() Option {
	return func(o *options) { o.extrapolate = false }
}

// WithRepeatFactor overrides the manager's repeat factor, which scales how
// many ticks a stale remote input may be repeated for.
func WithRepeatFactor(f float64) Option {
	return func(o *options) { o.repeatFactor = f }
}

// MaxRepeatedTicks returns how many ticks one input sample may be reused for
// a remote-owned entity: ceil(repeatFactor*10 / (delta*60)).
func MaxRepeatedTicks(repeatFactor, delta float64) uint64 {
	if delta <= 0 || repeatFactor <= 0 {
		return 0
	}
	return uint64(math.Ceil(repeatFactor*10/(delta*60) - 1e-9))
}

// Predicted is the entity implementation shared by every variant: stateless
// entities use NoInput and NoState, stateful ones NoInput.
type Predicted[I, S any] struct {
	behavior any
	sim      func(ctx Context, input I, state *S, delta float64)
	hasInput bool
	hasState bool
	opts     options

	m     *Manager
	id    ComponentID
	owner PlayerID

	full     FullState[S]
	states   *history.History[FullState[S]]
	verified *S

	view       *interp.Buffer[S]
	viewSample *S
	viewState  S

	input  I
	inputs *history.History[I]
	queued []I

	ownerKey codec.Key
	stateKey codec.Key
	inputKey codec.Key
}

// NewEntity wraps a behavior that keeps state but takes no input.
func NewEntity[S any](b Simulator[S], opts ...Option) *Predicted[NoInput, S] {
	sim := func(ctx Context, _ NoInput, state *S, delta float64) {
		b.Simulate(ctx, state, delta)
	}
	return newPredicted[NoInput, S](b, sim, false, true, opts)
}

// NewInputEntity wraps a behavior driven by per-tick input.
func NewInputEntity[I, S any](b InputSimulator[I, S], opts ...Option) *Predicted[I, S] {
	return newPredicted[I, S](b, b.Simulate, true, true, opts)
}

// NewStateless wraps a behavior that runs every tick without state.
func NewStateless(b StatelessSimulator) *Predicted[NoInput, NoState] {
	sim := func(ctx Context, _ NoInput, _ *NoState, delta float64) {
		b.Simulate(ctx, delta)
	}
	return newPredicted[NoInput, NoState](b, sim, false, false, nil)
}

func newPredicted[I, S any](b any, sim func(Context, I, *S, float64), hasInput, hasState bool, opts []Option) *Predicted[I, S] {
	o := options{extrapolate: true}
	for _, opt := range opts {
		opt(&o)
	}
	return &Predicted[I, S]{
		behavior: b,
		sim:      sim,
		hasInput: hasInput,
		hasState: hasState,
		opts:     o,
	}
}

func (p *Predicted[I, S]) ID() ComponentID { return p.id }
func (p *Predicted[I, S]) Owner() PlayerID { return p.owner }
func (p *Predicted[I, S]) HasInput() bool  { return p.hasInput }
func (p *Predicted[I, S]) HasState() bool  { return p.hasState }
func (p *Predicted[I, S]) Behavior() any   { return p.behavior }
func (p *Predicted[I, S]) isEventHandler() bool {
	_, ok := p.behavior.(EventHandler)
	return ok
}

// State returns the live state. The value must not be modified outside
// Simulate.
func (p *Predicted[I, S]) State() S { return p.full.State }

// Modify changes the live state while a tick is simulated, typically from
// another entity that runs earlier in the tick.
func (p *Predicted[I, S]) Modify(ctx Context, fn func(state *S)) error {
	if !ctx.IsSimulating() {
		return ErrNotSimulating
	}
	fn(&p.full.State)
	return nil
}

// ViewState returns the last interpolated view state.
func (p *Predicted[I, S]) ViewState() S { return p.viewState }

// Verified returns the latest state received from the server.
func (p *Predicted[I, S]) Verified() (S, bool) {
	if p.verified == nil {
		var zero S
		return zero, false
	}
	return *p.verified, true
}

// Input returns the input used by the most recent simulation step.
func (p *Predicted[I, S]) Input() I { return p.input }

// StateAt returns the state recorded for tick.
func (p *Predicted[I, S]) StateAt(tick uint64) (S, bool) {
	if p.states == nil {
		var zero S
		return zero, false
	}
	v, ok := p.states.Read(tick)
	return v.State, ok
}

// InputAt returns the input recorded for tick.
func (p *Predicted[I, S]) InputAt(tick uint64) (I, bool) {
	if p.inputs == nil {
		var zero I
		return zero, false
	}
	return p.inputs.Read(tick)
}

func (p *Predicted[I, S]) setup(m *Manager, id ComponentID, owner PlayerID) {
	p.m = m
	p.id = id
	p.owner = owner
	if p.opts.repeatFactor == 0 {
		p.opts.repeatFactor = m.cfg.RepeatFactor
	}

	obj, comp := uint32(id.Object), id.Component
	p.ownerKey = codec.KeyFor[Ownership](obj, comp)
	p.stateKey = codec.KeyFor[S](obj, comp)
	p.inputKey = codec.KeyFor[I](obj, comp)

	p.full = FullState[S]{State: p.initialState(), Prediction: Ownership{Owner: owner}}
	if hook, ok := p.behavior.(SetupHook); ok {
		hook.Setup(m, id)
	}
	p.pullState()

	capacity := m.historyCapacity()
	if p.states == nil || p.states.Capacity() != capacity {
		p.states = history.New[FullState[S]](capacity)
	} else {
		p.states.Clear()
	}
	if p.hasInput {
		if p.inputs == nil || p.inputs.Capacity() != capacity {
			p.inputs = history.New[I](capacity)
		} else {
			p.inputs.Clear()
		}
		p.queued = p.queued[:0]
		p.input = p.defaultInput()
	}

	p.verified = nil
	p.viewSample = nil
	p.viewState = cloneValue(p.full.State)
	if p.view == nil {
		p.view = interp.NewBuffer(p.interpolate, m.TickDelta(), m.interpolationDepth(), cloneValue(p.full.State))
	} else {
		p.view.Teleport(cloneValue(p.full.State))
	}
	if c, ok := p.behavior.(ViewCorrector[S]); ok {
		c.ResetView()
	}

	p.states.Write(m.localTickInContext, p.cloneFull())
}

func (p *Predicted[I, S]) setOwner(owner PlayerID) {
	p.owner = owner
	p.full.Prediction.Owner = owner
}

func (p *Predicted[I, S]) initialState() S {
	if b, ok := p.behavior.(InitialStater[S]); ok {
		return b.InitialState()
	}
	var zero S
	return zero
}

func (p *Predicted[I, S]) defaultInput() I {
	if b, ok := p.behavior.(InputDefaulter[I]); ok {
		return b.DefaultInput()
	}
	var zero I
	return zero
}

func (p *Predicted[I, S]) sanitize(input *I) {
	if b, ok := p.behavior.(InputSanitizer[I]); ok {
		b.SanitizeInput(input)
	}
}

func (p *Predicted[I, S]) cloneFull() FullState[S] {
	return FullState[S]{State: cloneValue(p.full.State), Prediction: p.full.Prediction}
}

func (p *Predicted[I, S]) prepareInput(isServer, isController bool, tick uint64) {
	if !p.hasInput {
		return
	}

	switch {
	case isController:
		in := p.defaultInput()
		if b, ok := p.behavior.(InputCapturer[I]); ok {
			b.CaptureInput(&in)
		}
		p.sanitize(&in)
		p.input = in
		p.inputs.Write(tick, cloneValue(in))
	case isServer:
		in := p.defaultInput()
		if len(p.queued) > 0 {
			in = p.queued[0]
			p.queued = p.queued[1:]
		}
		p.input = in
		p.inputs.Write(tick, cloneValue(in))
	}
}

// inputFor picks the input for tick: the recorded one if any, otherwise for
// remote-owned entities the closest earlier input while it is within the
// repeat horizon, otherwise the default.
func (p *Predicted[I, S]) inputFor(tick uint64, delta float64) I {
	if v, ok := p.inputs.Read(tick); ok {
		return cloneValue(v)
	}
	if p.m.isController(p.owner) || !p.opts.extrapolate {
		return p.defaultInput()
	}

	v, distance, ok := p.inputs.TryGetClosest(tick)
	if !ok {
		return p.defaultInput()
	}
	v = cloneValue(v)
	if distance > 0 {
		if b, ok := p.behavior.(InputExtrapolator[I]); ok {
			b.ModifyExtrapolatedInput(&v)
		}
	}
	if delta <= 0 {
		delta = p.m.TickDelta()
	}
	if distance > MaxRepeatedTicks(p.opts.repeatFactor, delta) {
		return p.defaultInput()
	}
	return v
}

func (p *Predicted[I, S]) simulateTick(tick uint64, delta float64) {
	var in I
	if p.hasInput {
		in = p.inputFor(tick, delta)
		p.input = in
	}
	p.sim(p.m, in, &p.full.State, delta)
}

func (p *Predicted[I, S]) postSimulate(_ uint64, delta float64) {
	if h, ok := p.behavior.(EventHandler); ok {
		h.PostSimulate(p.m, delta)
	}
}

func (p *Predicted[I, S]) pullState() {
	p.full.Prediction.Owner = p.owner
	if b, ok := p.behavior.(EngineBinding[S]); ok {
		b.PullState(&p.full.State)
	}
}

func (p *Predicted[I, S]) saveState(tick uint64) {
	p.states.Write(tick, p.cloneFull())
}

// rollback restores the state recorded for tick and pushes it to the
// engine. When the tick is gone the closest earlier snapshot is used and
// ErrDesync is returned.
func (p *Predicted[I, S]) rollback(tick uint64) error {
	v, ok := p.states.Read(tick)
	var err error
	if !ok {
		closest, distance, found := p.states.TryGetClosest(tick)
		if !found {
			return fmt.Errorf("entity %s tick %d: %w", p.id, tick, ErrDesync)
		}
		v = closest
		err = fmt.Errorf("entity %s tick %d, used snapshot %d ticks older: %w", p.id, tick, distance, ErrDesync)
	}

	p.full = FullState[S]{State: cloneValue(v.State), Prediction: v.Prediction}
	p.owner = v.Prediction.Owner
	if b, ok := p.behavior.(EngineBinding[S]); ok {
		b.PushState(p.full.State)
	}
	return err
}

func (p *Predicted[I, S]) writeState(target PlayerID, pk *codec.Packer) (bool, error) {
	if !p.hasState {
		return false, nil
	}
	ownerChanged, err := p.m.codec.WriteReliable(pk, uint32(target), p.ownerKey, p.full.Prediction)
	if err != nil {
		return false, err
	}
	stateChanged, err := p.m.codec.WriteReliable(pk, uint32(target), p.stateKey, p.full.State)
	if err != nil {
		return false, err
	}
	return ownerChanged || stateChanged, nil
}

func (p *Predicted[I, S]) readState(tick uint64, pk *codec.Packer) error {
	if !p.hasState {
		return nil
	}
	var own Ownership
	if err := p.m.codec.ReadReliable(pk, p.ownerKey, &own); err != nil {
		return err
	}
	var state S
	if err := p.m.codec.ReadReliable(pk, p.stateKey, &state); err != nil {
		return err
	}
	verified := cloneValue(state)
	p.verified = &verified
	if !p.states.Write(tick, FullState[S]{State: state, Prediction: own}) {
		return fmt.Errorf("entity %s tick %d older than history: %w", p.id, tick, ErrDesync)
	}
	return nil
}

func (p *Predicted[I, S]) writeInput(tick uint64, target PlayerID, pk *codec.Packer, reliable bool) error {
	if !p.hasInput {
		return nil
	}
	v, ok := p.inputs.Read(tick)
	pk.WriteBool(ok)
	if !ok {
		return nil
	}
	var err error
	if reliable {
		_, err = p.m.codec.WriteReliable(pk, uint32(target), p.inputKey, v)
	} else {
		_, err = p.m.codec.Write(pk, uint32(target), p.inputKey, v)
	}
	return err
}

func (p *Predicted[I, S]) readInput(tick uint64, sender PlayerID, pk *codec.Packer, reliable bool) error {
	if !p.hasInput {
		return nil
	}
	present, err := pk.ReadBool()
	if err != nil {
		return err
	}
	if !present {
		p.inputs.Remove(tick)
		return nil
	}

	var v I
	if reliable {
		err = p.m.codec.ReadReliable(pk, p.inputKey, &v)
	} else {
		err = p.m.codec.Read(pk, uint32(sender), p.inputKey, &v)
	}
	if err != nil {
		return err
	}
	p.inputs.Write(tick, v)
	return nil
}

// queueInput replaces the pending server-side input with one received from
// the entity's owner.
func (p *Predicted[I, S]) queueInput(sender PlayerID, pk *codec.Packer) error {
	if !p.hasInput {
		return nil
	}
	present, err := pk.ReadBool()
	if err != nil || !present {
		return err
	}
	var v I
	if err := p.m.codec.Read(pk, uint32(sender), p.inputKey, &v); err != nil {
		return err
	}
	p.sanitize(&v)
	p.queued = append(p.queued[:0], v)
	return nil
}

func (p *Predicted[I, S]) recordView() {
	if !p.hasState {
		return
	}
	if c, ok := p.behavior.(ViewCorrector[S]); ok {
		c.RecordView(cloneValue(p.full.State))
	}
}

func (p *Predicted[I, S]) updateViewState(delta float64, accumulate bool) {
	if !p.hasState {
		return
	}
	s := cloneValue(p.full.State)
	if c, ok := p.behavior.(ViewCorrector[S]); ok {
		c.CorrectView(&s, delta, accumulate)
	}
	p.viewSample = &s
}

func (p *Predicted[I, S]) updateView(dt float64) {
	if !p.hasState || p.view == nil {
		return
	}
	if p.viewSample != nil {
		p.view.Add(*p.viewSample)
		p.viewSample = nil
	}
	p.viewState = p.view.Advance(dt)
	if r, ok := p.behavior.(ViewRenderer[S]); ok {
		r.UpdateView(p.viewState, p.verified)
	}
}

func (p *Predicted[I, S]) resetInterpolation() {
	if p.view == nil {
		return
	}
	p.viewSample = nil
	p.viewState = cloneValue(p.full.State)
	p.view.Teleport(cloneValue(p.full.State))
	if c, ok := p.behavior.(ViewCorrector[S]); ok {
		c.ResetView()
	}
}

func (p *Predicted[I, S]) teardown() {
	if hook, ok := p.behavior.(TeardownHook); ok {
		hook.Teardown()
	}
	p.queued = p.queued[:0]
	p.verified = nil
	p.viewSample = nil
}

func (p *Predicted[I, S]) interpolate(from, to S, t float64) S {
	if b, ok := p.behavior.(Interpolator[S]); ok {
		return b.Interpolate(from, to, t)
	}
	if v, ok := any(from).(Vector[S]); ok {
		step := any(to).(Vector[S]).Sub(from)
		return v.Add(any(step).(Vector[S]).Scale(t))
	}
	return to
}
