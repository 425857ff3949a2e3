// Package protocol defines the framing shared by every transport: the
// protocol version, the default MTU and a tagged msgpack envelope for
// transports that carry raw bytes.
package protocol

import (
	"errors"
	"fmt"

	"github.com/automoto/rewind/prediction/codec"
	"github.com/automoto/rewind/shared/messages"
)

// Version must match between client and server; JoinRequest carries it.
const Version = "rewind/1"

// DefaultMTU is the largest payload sent as a datagram. Bigger messages go
// over the reliable channel.
const DefaultMTU = 1100

type Kind uint8

const (
	KindJoinRequest Kind = iota + 1
	KindJoinAccepted
	KindJoinRejected
	KindFullSync
	KindDeltaFrame
	KindInputFrame
)

var ErrUnknownKind = errors.New("protocol: unknown message kind")

type envelope struct {
	Kind Kind
	Body []byte
}

// Encode wraps msg, one of the shared/messages types, in an envelope.
func Encode(msg any) ([]byte, error) {
	kind, err := KindOf(msg)
	if err != nil {
		return nil, err
	}
	body, err := codec.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(envelope{Kind: kind, Body: body})
}

// Decode unwraps data into the message value it carries.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case KindJoinRequest:
		return decodeAs[messages.JoinRequest](env.Body)
	case KindJoinAccepted:
		return decodeAs[messages.JoinAccepted](env.Body)
	case KindJoinRejected:
		return decodeAs[messages.JoinRejected](env.Body)
	case KindFullSync:
		return decodeAs[messages.FullSync](env.Body)
	case KindDeltaFrame:
		return decodeAs[messages.DeltaFrame](env.Body)
	case KindInputFrame:
		return decodeAs[messages.InputFrame](env.Body)
	}
	return nil, fmt.Errorf("kind %d: %w", env.Kind, ErrUnknownKind)
}

// KindOf returns the envelope tag of msg.
func KindOf(msg any) (Kind, error) {
	switch msg.(type) {
	case messages.JoinRequest:
		return KindJoinRequest, nil
	case messages.JoinAccepted:
		return KindJoinAccepted, nil
	case messages.JoinRejected:
		return KindJoinRejected, nil
	case messages.FullSync:
		return KindFullSync, nil
	case messages.DeltaFrame:
		return KindDeltaFrame, nil
	case messages.InputFrame:
		return KindInputFrame, nil
	}
	return 0, fmt.Errorf("%T: %w", msg, ErrUnknownKind)
}

func decodeAs[T any](body []byte) (any, error) {
	var v T
	if err := codec.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}
