package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/shared/messages"
)

type recordingLink struct {
	sent     []any
	reliable []bool
	closed   string
	err      error
}

func (l *recordingLink) Send(msg any, reliable bool) error {
	if l.err != nil {
		return l.err
	}
	l.sent = append(l.sent, msg)
	l.reliable = append(l.reliable, reliable)
	return nil
}

func (l *recordingLink) Close(reason string) error {
	l.closed = reason
	return nil
}

func waitJoined(t *testing.T, c *Client) (messages.JoinAccepted, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.WaitJoined(ctx)
}

func TestAttachSendsJoinRequest(t *testing.T) {
	c := NewClient(nil)
	link := &recordingLink{}
	require.NoError(t, c.Attach(link, "rewind/1", "bot"))

	require.Len(t, link.sent, 1)
	assert.Equal(t, messages.JoinRequest{Version: "rewind/1", PlayerName: "bot"}, link.sent[0])
	assert.True(t, link.reliable[0])
	assert.Equal(t, StateConnected, c.State())
}

func TestJoinAcceptedSettlesWait(t *testing.T) {
	c := NewClient(nil)
	require.NoError(t, c.Attach(&recordingLink{}, "rewind/1", "bot"))

	go c.HandleMessage(messages.JoinAccepted{PlayerID: 4, ReconnectToken: "tok", TickRate: 30, Level: "arena"})

	acc, err := waitJoined(t, c)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), acc.PlayerID)
	assert.Equal(t, prediction.PlayerID(4), c.PlayerID())
	assert.Equal(t, "tok", c.ReconnectToken())
	assert.Equal(t, 30, c.TickRate())
	assert.Equal(t, "arena", c.Level())
	assert.Equal(t, StateJoinedGame, c.State())
}

func TestJoinRejectedReturnsReason(t *testing.T) {
	c := NewClient(nil)
	require.NoError(t, c.Attach(&recordingLink{}, "rewind/0", "bot"))
	c.HandleMessage(messages.JoinRejected{Reason: "client version does not match server"})

	_, err := waitJoined(t, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
	assert.Equal(t, StateError, c.State())
}

func TestReconnectSendsToken(t *testing.T) {
	c := NewClient(nil)
	require.NoError(t, c.Attach(&recordingLink{}, "rewind/1", "bot"))
	c.HandleMessage(messages.JoinAccepted{PlayerID: 2, ReconnectToken: "keep-me"})
	c.HandleDisconnect(errors.New("reset"))
	assert.Equal(t, StateDisconnected, c.State())

	link := &recordingLink{}
	require.NoError(t, c.Attach(link, "rewind/1", "bot"))
	require.Len(t, link.sent, 1)
	assert.Equal(t, "keep-me", link.sent[0].(messages.JoinRequest).ReconnectToken)
}

func TestAttachFailureSetsError(t *testing.T) {
	c := NewClient(nil)
	err := c.Attach(&recordingLink{err: errors.New("broken pipe")}, "rewind/1", "bot")
	require.Error(t, err)
	assert.Equal(t, StateError, c.State())
	assert.ErrorContains(t, c.LastError(), "broken pipe")
}

func TestSendInputNeedsJoin(t *testing.T) {
	c := NewClient(nil)
	assert.ErrorIs(t, c.SendInput(messages.InputFrame{ClientTick: 1}, false), ErrNotConnected)

	link := &recordingLink{}
	require.NoError(t, c.Attach(link, "rewind/1", "bot"))
	assert.ErrorIs(t, c.SendInput(messages.InputFrame{ClientTick: 1}, false), ErrNotConnected)

	c.HandleMessage(messages.JoinAccepted{PlayerID: 2})
	require.NoError(t, c.SendInput(messages.InputFrame{ClientTick: 5}, false))
	assert.Equal(t, messages.InputFrame{ClientTick: 5}, link.sent[len(link.sent)-1])
	assert.False(t, link.reliable[len(link.reliable)-1])
}

func TestClientNeverSendsState(t *testing.T) {
	c := NewClient(nil)
	assert.ErrorIs(t, c.SendFullSync(1, messages.FullSync{}), ErrClientOnly)
	assert.ErrorIs(t, c.SendFrame(1, messages.DeltaFrame{}), ErrClientOnly)
}

func TestFramesBeforeBindAreKept(t *testing.T) {
	c := NewClient(nil)
	for i := range maxPending + 10 {
		c.HandleMessage(messages.DeltaFrame{ServerTick: uint64(i + 1)})
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	require.Len(t, c.pending, maxPending)
	assert.Equal(t, uint64(11), c.pending[0].(messages.DeltaFrame).ServerTick)
}

func TestDisconnectClosesLink(t *testing.T) {
	c := NewClient(nil)
	link := &recordingLink{}
	require.NoError(t, c.Attach(link, "rewind/1", "bot"))
	c.Disconnect()
	assert.Equal(t, "client disconnect", link.closed)
	assert.Equal(t, StateDisconnected, c.State())
}
