package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automoto/rewind/prediction/codec"
	"github.com/automoto/rewind/shared/messages"
	"github.com/automoto/rewind/shared/protocol"
)

func TestEnvelopeKeepsMessageType(t *testing.T) {
	frame := messages.DeltaFrame{ServerTick: 40, ClientTick: 38, BaselineTick: 36, Payload: []byte{1, 2, 3}}
	data, err := protocol.Encode(frame)
	require.NoError(t, err)

	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, frame, msg)
}

func TestUnknownMessagesAreRejected(t *testing.T) {
	_, err := protocol.Encode(struct{ X int }{1})
	assert.ErrorIs(t, err, protocol.ErrUnknownKind)

	data, err := codec.Marshal(struct {
		Kind uint8
		Body []byte
	}{Kind: 99})
	require.NoError(t, err)
	_, err = protocol.Decode(data)
	assert.ErrorIs(t, err, protocol.ErrUnknownKind)
}

func TestGarbageFailsToDecode(t *testing.T) {
	_, err := protocol.Decode([]byte{0xc1})
	assert.Error(t, err)
}
