package prediction

import "slices"

// PlayersState is the deterministic view of who is connected. Connected is
// filled by the server; Handled lags it by the players whose join or leave
// has not been simulated yet.
type PlayersState struct {
	Connected []PlayerID
	Handled   []PlayerID
}

func (s PlayersState) Clone() PlayersState {
	return PlayersState{
		Connected: slices.Clone(s.Connected),
		Handled:   slices.Clone(s.Handled),
	}
}

// Players is the built-in system that turns connections into simulation
// events, so joins and leaves are replayed like everything else.
type Players struct {
	m       *Manager
	entity  *Predicted[NoInput, PlayersState]
	added   []func(ctx Context, player PlayerID)
	removed []func(ctx Context, player PlayerID)
}

func newPlayers(m *Manager) *Players {
	p := &Players{m: m}
	p.entity = NewEntity[PlayersState](p)
	return p
}

// OnPlayerAdded registers fn to run inside the tick that handles a join.
func (p *Players) OnPlayerAdded(fn func(ctx Context, player PlayerID)) {
	p.added = append(p.added, fn)
}

// OnPlayerRemoved registers fn to run inside the tick that handles a leave.
func (p *Players) OnPlayerRemoved(fn func(ctx Context, player PlayerID)) {
	p.removed = append(p.removed, fn)
}

// List returns the handled players in ascending order.
func (p *Players) List() []PlayerID {
	return slices.Clone(p.entity.full.State.Handled)
}

func (p *Players) PullState(state *PlayersState) {
	if !p.m.isServer {
		return
	}
	connected := state.Connected[:0]
	if p.m.isClient && p.m.localPlayer != NoPlayer {
		connected = append(connected, p.m.localPlayer)
	}
	connected = append(connected, p.m.observerOrder...)
	slices.Sort(connected)
	state.Connected = slices.Compact(connected)
}

func (p *Players) PushState(PlayersState) {}

func (p *Players) Interpolate(_, to PlayersState, _ float64) PlayersState { return to }

func (p *Players) Simulate(ctx Context, state *PlayersState, _ float64) {
	var gone []PlayerID
	state.Handled = slices.DeleteFunc(state.Handled, func(id PlayerID) bool {
		if _, found := slices.BinarySearch(state.Connected, id); found {
			return false
		}
		gone = append(gone, id)
		return true
	})
	for _, id := range gone {
		for _, fn := range p.removed {
			fn(ctx, id)
		}
	}

	for _, id := range state.Connected {
		i, found := slices.BinarySearch(state.Handled, id)
		if found {
			continue
		}
		state.Handled = slices.Insert(state.Handled, i, id)
		for _, fn := range p.added {
			fn(ctx, id)
		}
	}
}
