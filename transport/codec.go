// Package transport carries the arena protocol over websockets.
//
// Every websocket binary frame holds one msgpack encoded Envelope. The
// server greets each connection with a Welcome carrying its connection id,
// clients answer with a Join, and in-game connections receive a Snapshot
// every tick.
package transport

import (
	"fmt"

	"github.com/oriumgames/arena"
	"github.com/vmihailenco/msgpack/v5"
)

// MessageType identifies the payload of an Envelope.
type MessageType uint8

const (
	TypeWelcome MessageType = iota + 1
	TypeJoin
	TypeSnapshot
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case TypeWelcome:
		return "welcome"
	case TypeJoin:
		return "join"
	case TypeSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Envelope is the frame format shared by both directions.
type Envelope struct {
	Type    MessageType `msgpack:"t"`
	Payload []byte      `msgpack:"p"`
}

// Welcome tells a client the id the server assigned to it.
type Welcome struct {
	ConnectionID arena.ConnectionID `msgpack:"id"`
}

// Encode wraps v in an envelope of type t.
func Encode(t MessageType, v any) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	data, err := msgpack.Marshal(&Envelope{Type: t, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", t, err)
	}
	return data, nil
}

// Decode reads an envelope from a frame.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Unmarshal decodes the envelope payload into v.
func (e Envelope) Unmarshal(v any) error {
	if err := msgpack.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
