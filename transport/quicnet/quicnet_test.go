package quicnet_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automoto/rewind/shared/messages"
	"github.com/automoto/rewind/transport/quicnet"
)

type recorder struct {
	mu        sync.Mutex
	connected []*quicnet.Session
	msgs      chan any
	gone      chan error
	reply     func(s *quicnet.Session, msg any)
}

func newRecorder() *recorder {
	return &recorder{msgs: make(chan any, 16), gone: make(chan error, 4)}
}

func (r *recorder) Connected(s *quicnet.Session) {
	r.mu.Lock()
	r.connected = append(r.connected, s)
	r.mu.Unlock()
}

func (r *recorder) Message(s *quicnet.Session, msg any) {
	if r.reply != nil {
		r.reply(s, msg)
	}
	r.msgs <- msg
}

func (r *recorder) Disconnected(_ *quicnet.Session, err error) { r.gone <- err }

func receive(t *testing.T, ch chan any) any {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func startPair(t *testing.T, server, client *recorder) (*quicnet.Server, *quicnet.Session) {
	t.Helper()
	tlsConf, err := quicnet.SelfSignedTLS("127.0.0.1")
	require.NoError(t, err)

	srv := quicnet.NewServer("127.0.0.1:0", tlsConf, server, nil)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := quicnet.Dial(ctx, srv.Addr().String(), quicnet.InsecureClientTLS(),
		messages.JoinRequest{Version: "test", PlayerName: "ada"}, client, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close("test done") })
	return srv, sess
}

func TestHelloOpensSession(t *testing.T) {
	server, client := newRecorder(), newRecorder()
	server.reply = func(s *quicnet.Session, msg any) {
		if _, ok := msg.(messages.JoinRequest); ok {
			_ = s.Send(messages.JoinAccepted{PlayerID: 7, TickRate: 30}, true)
		}
	}
	startPair(t, server, client)

	assert.Equal(t, messages.JoinRequest{Version: "test", PlayerName: "ada"}, receive(t, server.msgs))
	accepted, ok := receive(t, client.msgs).(messages.JoinAccepted)
	require.True(t, ok)
	assert.Equal(t, uint32(7), accepted.PlayerID)

	server.mu.Lock()
	require.Len(t, server.connected, 1)
	assert.NotEqual(t, [16]byte{}, [16]byte(server.connected[0].ID))
	server.mu.Unlock()
}

func TestReliableAndUnreliableDelivery(t *testing.T) {
	server, client := newRecorder(), newRecorder()
	_, sess := startPair(t, server, client)
	receive(t, server.msgs)

	input := messages.InputFrame{ClientTick: 12, AckServerTick: 9, Payload: []byte{4, 5}}
	require.NoError(t, sess.Send(input, false))
	assert.Equal(t, input, receive(t, server.msgs))

	big := messages.InputFrame{ClientTick: 13, Payload: make([]byte, 8000)}
	require.NoError(t, sess.Send(big, false), "oversized unreliable messages fall back to the stream")
	got := receive(t, server.msgs).(messages.InputFrame)
	assert.Equal(t, uint64(13), got.ClientTick)
	assert.Len(t, got.Payload, 8000)
}

func TestCloseEndsBothSides(t *testing.T) {
	server, client := newRecorder(), newRecorder()
	srv, sess := startPair(t, server, client)
	receive(t, server.msgs)

	require.NoError(t, srv.Close())
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client session did not end")
	}
}
