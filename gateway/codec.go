package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"

	"github.com/hendrywilliam/adapt/structs"
)

// Codec translates frames and event payloads to and from the wire encoding.
type Codec interface {
	// Name goes into the connection query string.
	Name() string
	// MessageType is the websocket message kind frames travel in.
	MessageType() int
	EncodeFrame(f *Frame) ([]byte, error)
	DecodeFrame(data []byte) (*Frame, error)
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default encoding: one JSON object per text message.
func JSONCodec() Codec { return jsonCodec{} }

type jsonCodec struct{}

type jsonFrame struct {
	Op Opcode            `json:"op"`
	D  json.RawMessage   `json:"d,omitempty"`
	S  uint64            `json:"s,omitempty"`
	T  structs.EventType `json:"t,omitempty"`
}

func (jsonCodec) Name() string     { return "json" }
func (jsonCodec) MessageType() int { return websocket.TextMessage }

func (jsonCodec) EncodeFrame(f *Frame) ([]byte, error) {
	return json.Marshal(jsonFrame{Op: f.Op, D: json.RawMessage(f.D), S: f.S, T: f.T})
}

func (jsonCodec) DecodeFrame(data []byte) (*Frame, error) {
	var jf jsonFrame
	if err := json.Unmarshal(data, &jf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &Frame{Op: jf.Op, D: []byte(jf.D), S: jf.S, T: jf.T}, nil
}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// inflate undoes the per-message zlib compression negotiated at dial time.
func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}
