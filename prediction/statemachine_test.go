package prediction_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automoto/rewind/prediction"
)

type recordingNode struct {
	name string
	log  *[]string
}

func (n recordingNode) Enter(prediction.Context) { *n.log = append(*n.log, "enter "+n.name) }
func (n recordingNode) Exit(prediction.Context)  { *n.log = append(*n.log, "exit "+n.name) }

func (n recordingNode) Simulate(prediction.Context, float64) {
	*n.log = append(*n.log, "sim "+n.name)
}

func (n recordingNode) ViewEnter(verified bool) {
	*n.log = append(*n.log, fmt.Sprintf("view enter %s %v", n.name, verified))
}

func (n recordingNode) ViewExit(verified bool) {
	*n.log = append(*n.log, fmt.Sprintf("view exit %s %v", n.name, verified))
}

func newRecordingMachine(log *[]string, names ...string) *prediction.StateMachine {
	nodes := make([]prediction.StateNode, len(names))
	for i, name := range names {
		nodes[i] = recordingNode{name: name, log: log}
	}
	return prediction.NewStateMachine(nodes...)
}

func TestStateMachineSwitchesInsideSimulate(t *testing.T) {
	p := newPeer(prediction.RoleServer, prediction.DefaultConfig(), nil)
	var log []string
	sm := newRecordingMachine(&log, "a", "b", "c")
	var changes []prediction.Transition
	sm.Changed.AddListener(func(_ prediction.Context, tr prediction.Transition) {
		changes = append(changes, tr)
	})

	driver := prediction.NewStateless(statelessFunc(func(ctx prediction.Context, _ float64) {
		if ctx.CurrentTick() == 3 {
			require.NoError(t, sm.Next(ctx))
		}
	}))
	require.NoError(t, p.m.RegisterObject(100, prediction.NoPlayer, driver, sm.Entity()))
	assert.Equal(t, -1, sm.Current())

	for range 3 {
		p.m.Tick()
	}

	assert.Equal(t, []string{"enter a", "sim a", "sim a", "exit a", "enter b"}, log)
	assert.Equal(t, []prediction.Transition{{From: -1, To: 0}, {From: 0, To: 1}}, changes)
	assert.Equal(t, 1, sm.Current())

	// Replaying the ticks replays the hooks and lands in the same node.
	log = nil
	require.NoError(t, p.m.ReplayFrom(1))
	assert.Equal(t, []string{"sim a", "sim a", "exit a", "enter b"}, log)
	st, ok := sm.Entity().StateAt(3)
	require.True(t, ok)
	assert.Equal(t, prediction.SMState{Wanted: 1, Current: 1}, st)
}

func TestStateMachineRejectsBadSwitches(t *testing.T) {
	p := newPeer(prediction.RoleServer, prediction.DefaultConfig(), nil)
	var log []string
	sm := newRecordingMachine(&log, "a", "b")
	require.NoError(t, p.m.RegisterObject(100, prediction.NoPlayer, sm.Entity()))

	assert.ErrorIs(t, sm.SetState(p.m, 5), prediction.ErrUnknownState)
	assert.ErrorIs(t, sm.SetState(p.m, 1), prediction.ErrNotSimulating)

	empty := prediction.NewStateMachine()
	assert.ErrorIs(t, empty.Next(p.m), prediction.ErrUnknownState)
	assert.Nil(t, empty.CurrentNode())
}

func TestStateMachineViewHooks(t *testing.T) {
	var log []string
	sm := newRecordingMachine(&log, "a", "b")

	sm.UpdateView(prediction.SMState{Current: 0}, nil)
	sm.UpdateView(prediction.SMState{Current: 0}, nil)
	sm.UpdateView(prediction.SMState{Current: 1}, &prediction.SMState{Current: 0})

	assert.Equal(t, []string{
		"view enter a false",
		"view enter a true",
		"view exit a false",
		"view enter b false",
	}, log)
}
