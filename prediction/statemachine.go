package prediction

import (
	"errors"
	"fmt"
)

var ErrUnknownState = errors.New("prediction: unknown state node")

// SMState is the replicated state of a StateMachine: the index of the node
// it runs and of the node it was asked to switch to, -1 meaning none.
type SMState struct {
	Wanted  int
	Current int
}

// StateNode is one node of a StateMachine. Its hooks are part of the
// simulation and run again whenever a tick is replayed, so they may only
// touch predicted state.
type StateNode interface {
	Enter(ctx Context)
	Simulate(ctx Context, delta float64)
	Exit(ctx Context)
}

// StateNodeViewer is implemented by nodes that react when the view moves
// into or out of them. verified is set for moves of the verified state.
type StateNodeViewer interface {
	ViewEnter(verified bool)
	ViewExit(verified bool)
}

// Transition describes a switch between two nodes.
type Transition struct {
	From, To int
}

// StateMachine runs one node per tick and switches node when asked. The
// switch happens inside Simulate, so it is rolled back and replayed like any
// other state change.
type StateMachine struct {
	nodes  []StateNode
	entity *Predicted[NoInput, SMState]

	// Changed is raised on every switch, at most once per tick per peer.
	Changed *Event[Transition]

	viewIndex     int
	verifiedIndex int
}

// NewStateMachine builds a machine starting in nodes[0]. Register Entity
// with the manager.
func NewStateMachine(nodes ...StateNode) *StateMachine {
	sm := &StateMachine{nodes: nodes, viewIndex: -1, verifiedIndex: -1}
	sm.entity = NewEntity[SMState](sm)
	sm.Changed = NewEvent[Transition](sm.entity)
	return sm
}

func (sm *StateMachine) Entity() *Predicted[NoInput, SMState] { return sm.entity }

func (sm *StateMachine) Nodes() []StateNode { return sm.nodes }

// Current returns the index of the running node, -1 before the first tick.
func (sm *StateMachine) Current() int { return sm.entity.State().Current }

// CurrentNode returns the running node, nil before the first tick.
func (sm *StateMachine) CurrentNode() StateNode { return sm.node(sm.Current()) }

func (sm *StateMachine) node(i int) StateNode {
	if i < 0 || i >= len(sm.nodes) {
		return nil
	}
	return sm.nodes[i]
}

// SetState asks the machine to switch to node index. The switch happens the
// next time the machine simulates, which is later in the same tick when
// called from a node or an entity simulated before the machine.
func (sm *StateMachine) SetState(ctx Context, index int) error {
	if sm.node(index) == nil {
		return fmt.Errorf("node %d of %d: %w", index, len(sm.nodes), ErrUnknownState)
	}
	return sm.entity.Modify(ctx, func(s *SMState) { s.Wanted = index })
}

// Next switches to the node after the running one, wrapping around.
func (sm *StateMachine) Next(ctx Context) error {
	if len(sm.nodes) == 0 {
		return ErrUnknownState
	}
	return sm.SetState(ctx, (sm.Current()+1)%len(sm.nodes))
}

// Previous switches to the node before the running one, wrapping around.
func (sm *StateMachine) Previous(ctx Context) error {
	if len(sm.nodes) == 0 {
		return ErrUnknownState
	}
	n := len(sm.nodes)
	return sm.SetState(ctx, (sm.Current()-1+n)%n)
}

func (sm *StateMachine) InitialState() SMState {
	if len(sm.nodes) == 0 {
		return SMState{Wanted: -1, Current: -1}
	}
	return SMState{Wanted: 0, Current: -1}
}

func (sm *StateMachine) Setup(Context, ComponentID) {
	sm.viewIndex, sm.verifiedIndex = -1, -1
}

func (sm *StateMachine) Simulate(ctx Context, s *SMState, delta float64) {
	if len(sm.nodes) == 0 || s.Wanted < 0 {
		return
	}
	if n := sm.node(s.Current); n != nil {
		n.Simulate(ctx, delta)
	}
	if s.Wanted == s.Current {
		return
	}

	from := s.Current
	if n := sm.node(from); n != nil {
		n.Exit(ctx)
	}
	s.Current = s.Wanted
	if n := sm.node(s.Current); n != nil {
		n.Enter(ctx)
	}
	sm.Changed.Invoke(ctx, Transition{From: from, To: s.Current})
}

func (sm *StateMachine) UpdateView(view SMState, verified *SMState) {
	if verified != nil {
		sm.verifiedIndex = sm.moveView(sm.verifiedIndex, verified.Current, true)
	}
	sm.viewIndex = sm.moveView(sm.viewIndex, view.Current, false)
}

func (sm *StateMachine) moveView(from, to int, verified bool) int {
	if from == to {
		return from
	}
	if v, ok := sm.node(from).(StateNodeViewer); ok {
		v.ViewExit(verified)
	}
	if v, ok := sm.node(to).(StateNodeViewer); ok {
		v.ViewEnter(verified)
	}
	return to
}
