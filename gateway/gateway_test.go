package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hendrywilliam/adapt/structs"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type wireFrame struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  uint64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// gatewayScript plays the server side of one accepted connection. The accept
// index counts reconnects from zero.
type gatewayScript func(c *serverConn, accept int)

type gatewayServer struct {
	ts      *httptest.Server
	accepts atomic.Int32
}

func newGatewayServer(t *testing.T, run gatewayScript) *gatewayServer {
	t.Helper()
	srv := &gatewayServer{}
	srv.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		accept := int(srv.accepts.Add(1)) - 1
		run(&serverConn{t: t, conn: conn, wsURL: "ws://" + r.Host}, accept)
	}))
	t.Cleanup(srv.ts.Close)
	return srv
}

func (s *gatewayServer) url() string { return "ws" + s.ts.URL[4:] }

func (s *gatewayServer) connections() int { return int(s.accepts.Load()) }

// serverConn wraps an accepted websocket with frame helpers. Scripts run off
// the test goroutine, so failures go through Errorf, never FailNow.
type serverConn struct {
	t     *testing.T
	conn  *websocket.Conn
	wsURL string
}

func (c *serverConn) send(op Opcode, d any, s uint64, event structs.EventType) {
	f := wireFrame{Op: op, S: s, T: string(event)}
	if d != nil {
		raw, err := json.Marshal(d)
		if err != nil {
			c.t.Errorf("marshal payload: %v", err)
			return
		}
		f.D = raw
	}
	if err := c.conn.WriteJSON(f); err != nil {
		c.t.Errorf("write frame op %d: %v", op, err)
	}
}

func (c *serverConn) hello(interval time.Duration) {
	c.send(OpcodeHello, helloPayload{HeartbeatInterval: interval.Milliseconds()}, 0, "")
}

func (c *serverConn) ready(sessionID, resumeURL string) {
	c.send(OpcodeDispatch, map[string]any{
		"session_id":         sessionID,
		"resume_gateway_url": resumeURL,
	}, 1, structs.EventReady)
}

// expect reads frames until one with the wanted opcode arrives. Heartbeats
// in between are acknowledged so long handshakes do not starve the client.
func (c *serverConn) expect(op Opcode) (wireFrame, bool) {
	for {
		var f wireFrame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.t.Errorf("waiting for opcode %d: %v", op, err)
			return f, false
		}
		if f.Op == op {
			return f, true
		}
		if f.Op == OpcodeHeartbeat {
			c.send(OpcodeHeartbeatAck, nil, 0, "")
			continue
		}
		c.t.Errorf("expected opcode %d, got %d", op, f.Op)
		return f, false
	}
}

func (c *serverConn) expectIdentify() identifyPayload {
	var p identifyPayload
	f, ok := c.expect(OpcodeIdentify)
	if ok {
		assert.NoError(c.t, json.Unmarshal(f.D, &p))
	}
	return p
}

func (c *serverConn) expectResume() resumePayload {
	var p resumePayload
	f, ok := c.expect(OpcodeResume)
	if ok {
		assert.NoError(c.t, json.Unmarshal(f.D, &p))
	}
	return p
}

// serveHeartbeats acknowledges beats until the connection dies.
func (c *serverConn) serveHeartbeats() {
	for {
		var f wireFrame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Op == OpcodeHeartbeat {
			c.send(OpcodeHeartbeatAck, nil, 0, "")
		}
	}
}

// drain swallows inbound frames without acknowledging anything.
func (c *serverConn) drain() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *serverConn) drop(code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// recorder captures what the gateway hands upward.
type recorder struct {
	mu     sync.Mutex
	events []structs.EventType
	opens  []bool
}

func (r *recorder) dispatch(t structs.EventType, _ []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

func (r *recorder) open(resumed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens = append(r.opens, resumed)
}

func (r *recorder) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) eventTypes() []structs.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]structs.EventType(nil), r.events...)
}

func (r *recorder) openFlags() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.opens...)
}

func testArguments(url string, rec *recorder) Arguments {
	return Arguments{
		Token:      "s3cret",
		URL:        url,
		Backoff:    Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2},
		OnDispatch: rec.dispatch,
		OnOpen:     rec.open,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestGatewayConnectAndIdentify(t *testing.T) {
	rec := &recorder{}
	srv := newGatewayServer(t, func(c *serverConn, accept int) {
		if accept > 0 {
			c.t.Errorf("unexpected reconnect, accept %d", accept)
			return
		}
		c.hello(50 * time.Millisecond)
		id := c.expectIdentify()
		assert.Equal(c.t, "s3cret", id.Token)
		assert.Equal(c.t, structs.DeviceDesktop, id.Device)
		assert.Equal(c.t, structs.StatusIdle, id.Status)
		c.ready("sess-1", "")
		c.send(OpcodeDispatch, map[string]any{"content": "hi"}, 2, structs.EventMessageCreate)
		c.serveHeartbeats()
	})

	args := testArguments(srv.url(), rec)
	args.Status = structs.StatusIdle
	g := New(args)
	require.NoError(t, g.Open(context.Background()))
	defer g.Close()

	assert.Equal(t, StatusReady, g.Status())
	assert.Equal(t, []bool{false}, rec.openFlags())

	require.Eventually(t, func() bool {
		return rec.eventCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []structs.EventType{structs.EventReady, structs.EventMessageCreate}, rec.eventTypes())
	assert.Equal(t, "sess-1", g.session.ID())
	assert.Equal(t, uint64(2), g.session.Sequence())

	// An acknowledged heartbeat leaves a round trip measurement behind.
	require.Eventually(t, func() bool {
		return g.Latency() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGatewayResumeAfterDrop(t *testing.T) {
	rec := &recorder{}
	srv := newGatewayServer(t, func(c *serverConn, accept int) {
		switch accept {
		case 0:
			c.hello(time.Minute)
			c.expectIdentify()
			c.ready("sess-9", c.wsURL)
			c.send(OpcodeDispatch, map[string]any{"id": 5}, 5, structs.EventGuildCreate)
			c.drop(CloseUnknownError)
		case 1:
			c.hello(time.Minute)
			res := c.expectResume()
			assert.Equal(c.t, "s3cret", res.Token)
			assert.Equal(c.t, "sess-9", res.SessionID)
			assert.Equal(c.t, uint64(5), res.Seq)
			c.send(OpcodeDispatch, map[string]any{"id": 6}, 6, structs.EventMessageCreate)
			c.serveHeartbeats()
		default:
			c.t.Errorf("unexpected accept %d", accept)
		}
	})

	g := New(testArguments(srv.url(), rec))
	require.NoError(t, g.Open(context.Background()))
	defer g.Close()

	require.Eventually(t, func() bool {
		return rec.eventCount() == 3
	}, 2*time.Second, 10*time.Millisecond)

	// One ready only: the resumed session replays events instead of starting
	// over, and dispatch order holds across the reconnect.
	assert.Equal(t, []structs.EventType{
		structs.EventReady,
		structs.EventGuildCreate,
		structs.EventMessageCreate,
	}, rec.eventTypes())
	assert.Equal(t, []bool{false, true}, rec.openFlags())
	assert.Equal(t, uint64(6), g.session.Sequence())
	assert.Equal(t, StatusReady, g.Status())
	assert.Equal(t, 2, srv.connections())
}

func TestGatewayReconnectsWhenAsked(t *testing.T) {
	rec := &recorder{}
	srv := newGatewayServer(t, func(c *serverConn, accept int) {
		switch accept {
		case 0:
			c.hello(time.Minute)
			c.expectIdentify()
			c.ready("sess-1", "")
			c.send(OpcodeReconnect, nil, 0, "")
			c.drain()
		case 1:
			c.hello(time.Minute)
			res := c.expectResume()
			assert.Equal(c.t, "sess-1", res.SessionID)
			assert.Equal(c.t, uint64(1), res.Seq)
			c.serveHeartbeats()
		default:
			c.t.Errorf("unexpected accept %d", accept)
		}
	})

	g := New(testArguments(srv.url(), rec))
	require.NoError(t, g.Open(context.Background()))
	defer g.Close()

	require.Eventually(t, func() bool {
		return srv.connections() == 2 && g.Status() == StatusReady
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []structs.EventType{structs.EventReady}, rec.eventTypes())
	assert.Equal(t, []bool{false, true}, rec.openFlags())
}

func TestGatewayReidentifiesOnInvalidSession(t *testing.T) {
	rec := &recorder{}
	srv := newGatewayServer(t, func(c *serverConn, accept int) {
		switch accept {
		case 0:
			c.hello(time.Minute)
			c.expectIdentify()
			c.ready("sess-1", "")
			c.send(OpcodeInvalidSession, false, 0, "")
			c.drain()
		case 1:
			c.hello(time.Minute)
			c.expectIdentify()
			c.ready("sess-2", "")
			c.serveHeartbeats()
		default:
			c.t.Errorf("unexpected accept %d", accept)
		}
	})

	args := testArguments(srv.url(), rec)
	args.InvalidSessionWait = 5 * time.Millisecond
	g := New(args)
	require.NoError(t, g.Open(context.Background()))
	defer g.Close()

	require.Eventually(t, func() bool {
		return rec.eventCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// The discarded session identifies from scratch: a second ready, not a
	// resume.
	assert.Equal(t, []structs.EventType{structs.EventReady, structs.EventReady}, rec.eventTypes())
	assert.Equal(t, []bool{false, false}, rec.openFlags())
	assert.Equal(t, "sess-2", g.session.ID())
}

func TestGatewayResumeRejectedFallsBackToIdentify(t *testing.T) {
	rec := &recorder{}
	srv := newGatewayServer(t, func(c *serverConn, accept int) {
		switch accept {
		case 0:
			c.hello(time.Minute)
			c.expectIdentify()
			c.ready("sess-7", "")
			c.send(OpcodeDispatch, map[string]any{"content": "hi"}, 2, structs.EventMessageCreate)
			c.drop(CloseUnknownError)
		case 1:
			c.hello(time.Minute)
			res := c.expectResume()
			assert.Equal(c.t, "sess-7", res.SessionID)
			assert.Equal(c.t, uint64(2), res.Seq)
			c.send(OpcodeInvalidSession, false, 0, "")
			c.drain()
		case 2:
			c.hello(time.Minute)
			c.expectIdentify()
			c.ready("sess-8", "")
			c.serveHeartbeats()
		default:
			c.t.Errorf("unexpected accept %d", accept)
		}
	})

	args := testArguments(srv.url(), rec)
	args.InvalidSessionWait = 5 * time.Millisecond
	g := New(args)
	require.NoError(t, g.Open(context.Background()))
	defer g.Close()

	require.Eventually(t, func() bool {
		return rec.eventCount() == 3 && g.Status() == StatusReady
	}, 2*time.Second, 10*time.Millisecond)

	// The rejected resume clears the session, so the third connection
	// identifies and earns a fresh ready.
	assert.Equal(t, []structs.EventType{
		structs.EventReady,
		structs.EventMessageCreate,
		structs.EventReady,
	}, rec.eventTypes())
	assert.Equal(t, []bool{false, true, false}, rec.openFlags())
	assert.Equal(t, "sess-8", g.session.ID())
	assert.Equal(t, 3, srv.connections())
}

func TestGatewayMissedHeartbeatsForceResume(t *testing.T) {
	rec := &recorder{}
	srv := newGatewayServer(t, func(c *serverConn, accept int) {
		switch accept {
		case 0:
			c.hello(25 * time.Millisecond)
			c.expectIdentify()
			c.ready("sess-4", "")
			c.drain()
		case 1:
			c.hello(time.Minute)
			res := c.expectResume()
			assert.Equal(c.t, "sess-4", res.SessionID)
			c.serveHeartbeats()
		default:
			c.t.Errorf("unexpected accept %d", accept)
		}
	})

	args := testArguments(srv.url(), rec)
	args.HeartbeatMissThreshold = 2
	g := New(args)
	require.NoError(t, g.Open(context.Background()))
	defer g.Close()

	require.Eventually(t, func() bool {
		return srv.connections() == 2 && g.Status() == StatusReady
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []bool{false, true}, rec.openFlags())
}

func TestGatewayStalledHandshakeReconnectsOnce(t *testing.T) {
	rec := &recorder{}
	srv := newGatewayServer(t, func(c *serverConn, accept int) {
		switch accept {
		case 0:
			// Short interval, no acks, and a long pause before ready: the
			// miss countdown must not start while the handshake is in
			// flight, or a second connect loop races this one.
			c.hello(10 * time.Millisecond)
			c.expectIdentify()
			time.Sleep(250 * time.Millisecond)
			c.ready("sess-3", "")
			c.drain()
		case 1:
			// A redial may only happen after the first handshake delivered
			// its ready.
			if rec.eventCount() == 0 {
				c.t.Error("reconnected while the first handshake was still in flight")
			}
			c.hello(time.Minute)
			res := c.expectResume()
			assert.Equal(c.t, "sess-3", res.SessionID)
			c.serveHeartbeats()
		default:
			c.t.Errorf("unexpected accept %d", accept)
		}
	})

	args := testArguments(srv.url(), rec)
	args.HeartbeatMissThreshold = 1
	g := New(args)
	require.NoError(t, g.Open(context.Background()))
	defer g.Close()

	// Once live, the unacknowledged beats force exactly one reconnect, and
	// the resumed session replays no second ready.
	require.Eventually(t, func() bool {
		return srv.connections() == 2 && g.Status() == StatusReady
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, srv.connections())
	assert.Equal(t, []structs.EventType{structs.EventReady}, rec.eventTypes())
	assert.Equal(t, []bool{false, true}, rec.openFlags())
}

func TestGatewayAuthFailureIsFatal(t *testing.T) {
	rec := &recorder{}
	srv := newGatewayServer(t, func(c *serverConn, accept int) {
		c.drop(CloseAuthenticationFailed)
	})

	g := New(testArguments(srv.url(), rec))
	err := g.Open(context.Background())
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	// Bad credentials burn no retries.
	assert.Equal(t, 1, srv.connections())
	select {
	case <-g.Done():
	default:
		t.Fatal("gateway should have stopped")
	}
	assert.ErrorIs(t, g.Err(), ErrAuthenticationFailed)
	assert.Equal(t, StatusClosed, g.Status())
}

func TestGatewayGivesUpAfterBadHandshake(t *testing.T) {
	rec := &recorder{}
	srv := newGatewayServer(t, func(c *serverConn, accept int) {
		// Greeting with anything but hello is a protocol violation.
		c.send(OpcodeDispatch, map[string]any{}, 1, structs.EventMessageCreate)
		c.drain()
	})

	args := testArguments(srv.url(), rec)
	args.Backoff = Backoff{Base: 5 * time.Millisecond, Multiplier: 2, MaxAttempts: 2}
	g := New(args)
	err := g.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.ErrorContains(t, err, "gave up after 2 attempts")
	assert.Equal(t, 2, srv.connections())
}

func TestGatewayCloseIsClean(t *testing.T) {
	rec := &recorder{}
	srv := newGatewayServer(t, func(c *serverConn, accept int) {
		c.hello(time.Minute)
		c.expectIdentify()
		c.ready("sess-1", "")
		c.serveHeartbeats()
	})

	g := New(testArguments(srv.url(), rec))
	require.NoError(t, g.Open(context.Background()))

	require.NoError(t, g.Close())
	select {
	case <-g.Done():
	default:
		t.Fatal("done should be closed")
	}
	assert.NoError(t, g.Err())
	assert.Equal(t, StatusClosed, g.Status())

	// Closing twice is harmless; reopening is not a thing.
	assert.NoError(t, g.Close())
	assert.ErrorIs(t, g.Open(context.Background()), ErrAlreadyOpen)
}
