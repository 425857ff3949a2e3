package loopback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/shared/messages"
)

type recorder struct {
	inputs    []messages.InputFrame
	frames    []messages.DeltaFrame
	fullSyncs []messages.FullSync
}

func (r *recorder) HandleInput(_ prediction.PlayerID, f messages.InputFrame) {
	r.inputs = append(r.inputs, f)
}
func (r *recorder) HandleFrame(f messages.DeltaFrame)  { r.frames = append(r.frames, f) }
func (r *recorder) HandleFullSync(m messages.FullSync) { r.fullSyncs = append(r.fullSyncs, m) }

func TestLatencyDelaysDelivery(t *testing.T) {
	n := New()
	n.Latency = 2
	server, client := &recorder{}, &recorder{}
	st := n.ServerTransport(server)
	ct := n.ClientTransport(3, client)

	require.NoError(t, st.SendFrame(3, messages.DeltaFrame{ServerTick: 1}))
	require.NoError(t, ct.SendInput(messages.InputFrame{ClientTick: 1}, false))

	assert.Zero(t, n.Flush())
	assert.Zero(t, n.Flush())
	assert.Equal(t, 2, n.Flush())
	assert.Len(t, client.frames, 1)
	assert.Len(t, server.inputs, 1)
	assert.Zero(t, n.Pending())
}

func TestDropsOnlyUnreliableTraffic(t *testing.T) {
	n := New()
	n.DropInput = func(prediction.PlayerID, messages.InputFrame) bool { return true }
	server := &recorder{}
	n.ServerTransport(server)
	ct := n.ClientTransport(3, &recorder{})

	require.NoError(t, ct.SendInput(messages.InputFrame{ClientTick: 1}, false))
	require.NoError(t, ct.SendInput(messages.InputFrame{ClientTick: 2}, true))
	n.Flush()

	require.Len(t, server.inputs, 1)
	assert.Equal(t, uint64(2), server.inputs[0].ClientTick)
}

func TestDisconnectStopsDelivery(t *testing.T) {
	n := New()
	client := &recorder{}
	st := n.ServerTransport(&recorder{})
	n.ClientTransport(3, client)
	n.Disconnect(3)

	require.NoError(t, st.SendFullSync(3, messages.FullSync{}))
	n.Flush()
	assert.Empty(t, client.fullSyncs)
}
