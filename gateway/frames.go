package gateway

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hendrywilliam/adapt/structs"
)

type Opcode = uint8

const (
	OpcodeDispatch       Opcode = 0
	OpcodeHeartbeat      Opcode = 1
	OpcodeIdentify       Opcode = 2
	OpcodePresenceUpdate Opcode = 3
	OpcodeResume         Opcode = 6
	OpcodeReconnect      Opcode = 7
	OpcodeInvalidSession Opcode = 9
	OpcodeHello          Opcode = 10
	OpcodeHeartbeatAck   Opcode = 11
)

type CloseCode = int

const (
	CloseUnknownError         CloseCode = 4000
	CloseUnknownOpcode        CloseCode = 4001
	CloseDecodeError          CloseCode = 4002
	CloseNotAuthenticated     CloseCode = 4003
	CloseAuthenticationFailed CloseCode = 4004
	CloseAlreadyAuthenticated CloseCode = 4005
	CloseInvalidSequence      CloseCode = 4007
	CloseRateLimited          CloseCode = 4008
	CloseSessionTimedOut      CloseCode = 4009
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrDecode               = errors.New("invalid payload")
	ErrProtocol             = errors.New("protocol violation")
	ErrAlreadyOpen          = errors.New("gateway is already open")
	ErrNotConnected         = errors.New("gateway is not connected")
	ErrMissedHeartbeat      = errors.New("missed heartbeat acknowledgements")
)

func closeCodeError(code int) error {
	switch code {
	case CloseAuthenticationFailed:
		return ErrAuthenticationFailed
	case CloseNotAuthenticated:
		return ErrNotAuthenticated
	case CloseDecodeError:
		return ErrDecode
	default:
		return fmt.Errorf("gateway closed with code %d", code)
	}
}

// Bad credentials never fix themselves; everything else is worth a retry.
func isFatal(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

// Frame is one protocol unit in either direction, parsed out of the wire
// encoding. D stays encoded until the payload type is known.
type Frame struct {
	Op Opcode
	S  uint64
	T  structs.EventType
	D  []byte
}

func (f *Frame) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("op", int(f.Op)),
		slog.Uint64("sequence", f.S),
		slog.String("event_name", string(f.T)),
		slog.Int("payload_bytes", len(f.D)),
	)
}

type helloPayload struct {
	// Milliseconds between heartbeats.
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyPayload struct {
	Token  string         `json:"token"`
	Device structs.Device `json:"device"`
	Status structs.Status `json:"status,omitempty"`
}

type resumePayload struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
}

type presencePayload struct {
	Status       structs.Status `json:"status"`
	CustomStatus *string        `json:"custom_status,omitempty"`
}

// readyInfo is the slice of the ready payload the gateway needs for session
// bookkeeping; the full payload flows to the dispatch callback untouched.
type readyInfo struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}
