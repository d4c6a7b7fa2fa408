package gateway

import (
	"bytes"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hendrywilliam/adapt/structs"
)

// MsgpackCodec trades the default JSON text frames for msgpack binary
// frames. Payload structs keep their json tags; the encoder falls back to
// those.
func MsgpackCodec() Codec { return msgpackCodec{} }

type msgpackCodec struct{}

type msgpackFrame struct {
	Op Opcode             `msgpack:"op"`
	D  msgpack.RawMessage `msgpack:"d,omitempty"`
	S  uint64             `msgpack:"s,omitempty"`
	T  structs.EventType  `msgpack:"t,omitempty"`
}

func (msgpackCodec) Name() string     { return "msgpack" }
func (msgpackCodec) MessageType() int { return websocket.BinaryMessage }

func (c msgpackCodec) EncodeFrame(f *Frame) ([]byte, error) {
	return c.Marshal(msgpackFrame{Op: f.Op, D: msgpack.RawMessage(f.D), S: f.S, T: f.T})
}

func (c msgpackCodec) DecodeFrame(data []byte) (*Frame, error) {
	var mf msgpackFrame
	if err := c.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &Frame{Op: mf.Op, D: []byte(mf.D), S: mf.S, T: mf.T}, nil
}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
