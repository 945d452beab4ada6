// Package transport carries replica messages between the host and
// participants over WebSocket, with a choice of wire codec and signed
// participant tokens.
package transport

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/talgya/hexfire/internal/replica"
)

// Codec encodes envelopes for one connection.
type Codec interface {
	Name() string
	Encode(m replica.Message) ([]byte, error)
	Decode(b []byte, m *replica.Message) error
	// FrameType is the WebSocket frame type the codec writes.
	FrameType() int
}

type jsonCodec struct{}

func (jsonCodec) Name() string                              { return "json" }
func (jsonCodec) Encode(m replica.Message) ([]byte, error)  { return json.Marshal(m) }
func (jsonCodec) Decode(b []byte, m *replica.Message) error { return json.Unmarshal(b, m) }
func (jsonCodec) FrameType() int                            { return websocket.TextMessage }

type msgpackCodec struct{}

func (msgpackCodec) Name() string                              { return "msgpack" }
func (msgpackCodec) Encode(m replica.Message) ([]byte, error)  { return msgpack.Marshal(&m) }
func (msgpackCodec) Decode(b []byte, m *replica.Message) error { return msgpack.Unmarshal(b, m) }
func (msgpackCodec) FrameType() int                            { return websocket.BinaryMessage }

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// CodecByName resolves a codec query parameter. Empty means JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
