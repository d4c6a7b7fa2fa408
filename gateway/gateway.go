// Package gateway maintains the persistent websocket connection to harmony,
// adapt's real-time event server. It owns the handshake, heartbeating,
// sequence tracking and reconnects; decoded dispatch frames are handed to a
// callback in arrival order.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/hendrywilliam/adapt/structs"
)

type Status = string

const (
	StatusDisconnected  Status = "disconnected"
	StatusConnecting    Status = "connecting"
	StatusAwaitingHello Status = "awaiting_hello"
	StatusIdentifying   Status = "identifying"
	StatusResuming      Status = "resuming"
	StatusReady         Status = "ready"
	StatusDegraded      Status = "degraded"
	StatusReconnecting  Status = "reconnecting"
	StatusClosed        Status = "closed"
)

const (
	// Handshake reads get bounded windows; a silent server is a transport
	// failure, not a hang.
	helloTimeout = 15 * time.Second
	readyTimeout = 30 * time.Second
	writeWait    = 10 * time.Second

	// Outbound frame budget.
	sendBurst  = 120
	sendWindow = time.Minute
)

type Arguments struct {
	Token string
	// URL of the harmony gateway, e.g. wss://harmony.adapt.chat.
	URL string

	// Codec picks the wire encoding; nil means JSON.
	Codec Codec
	// Compress asks the server to zlib-compress every inbound message.
	Compress bool
	// Status is the presence advertised at identify; empty means the server
	// default.
	Status structs.Status

	Backoff Backoff
	// HeartbeatMissThreshold is how many unacknowledged intervals force a
	// reconnect; minimum 1.
	HeartbeatMissThreshold int
	// InvalidSessionWait overrides the pause before re-identifying after an
	// invalid session. Zero means the protocol default of 1-5 seconds.
	InvalidSessionWait time.Duration

	// OnDispatch runs on the read-loop goroutine for every dispatch frame,
	// after the sequence watermark has advanced. Calls never overlap and
	// follow arrival order, including across reconnects. Implementations own
	// cache mutation and handler fan-out and must not block for long.
	OnDispatch func(t structs.EventType, data []byte)
	// OnOpen runs after every completed handshake.
	OnOpen func(resumed bool)

	Logger *slog.Logger
	Dialer *websocket.Dialer
}

type Gateway struct {
	mu         sync.RWMutex
	conn       *websocket.Conn
	hb         *heartbeat
	listenDone chan struct{}
	status     Status

	url      string
	token    string
	codec    Codec
	compress bool
	presence structs.Status

	session     Session
	limiter     *rate.Limiter
	backoff     Backoff
	missLimit   int
	invalidWait time.Duration

	onDispatch func(t structs.EventType, data []byte)
	onOpen     func(resumed bool)

	dialer  *websocket.Dialer
	log     *slog.Logger
	latency atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	reconnecting atomic.Bool
	closed       atomic.Bool
	done         chan struct{}
	err          error
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

func New(args Arguments) *Gateway {
	log := args.Logger
	if log == nil {
		log = slog.Default()
	}
	codec := args.Codec
	if codec == nil {
		codec = JSONCodec()
	}
	dialer := args.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	backoff := args.Backoff
	if backoff == (Backoff{}) {
		backoff = DefaultBackoff()
	}
	miss := args.HeartbeatMissThreshold
	if miss < 1 {
		miss = 1
	}
	return &Gateway{
		status:      StatusDisconnected,
		url:         args.URL,
		token:       args.Token,
		codec:       codec,
		compress:    args.Compress,
		presence:    args.Status,
		limiter:     rate.NewLimiter(rate.Every(sendWindow/sendBurst), sendBurst),
		backoff:     backoff,
		missLimit:   miss,
		invalidWait: args.InvalidSessionWait,
		onDispatch:  args.OnDispatch,
		onOpen:      args.OnOpen,
		dialer:      dialer,
		log:         log,
		done:        make(chan struct{}),
	}
}

// SetToken replaces the token used to identify. It only makes sense before
// Open, e.g. after a login that traded credentials for a token.
func (g *Gateway) SetToken(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = token
}

// Open dials the gateway and completes the first handshake, retrying with
// backoff on transport failures. Once it returns, later disconnects
// reconnect in the background; Done reports when the gateway stops for
// good. The context governs the whole connection lifetime. A gateway is
// single-use: after Close it cannot be reopened.
func (g *Gateway) Open(ctx context.Context) error {
	g.mu.Lock()
	if g.status != StatusDisconnected {
		g.mu.Unlock()
		return ErrAlreadyOpen
	}
	g.status = StatusConnecting
	g.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	g.ctx = ctx
	g.cancel = cancel
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		<-ctx.Done()
		g.stop(ctx.Err())
	}()

	if err := g.connect(ctx); err != nil {
		g.stop(err)
		return err
	}
	return nil
}

// connect runs the retry loop around single connection attempts. Fatal
// errors and an exhausted attempt budget end it.
func (g *Gateway) connect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		err := g.connectOnce(ctx)
		if err == nil {
			return nil
		}
		if isFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if g.backoff.MaxAttempts > 0 && attempt+1 >= g.backoff.MaxAttempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt+1, err)
		}
		delay := g.backoff.Delay(attempt)
		g.log.Warn("gateway connect failed", "error", err, "retry_in", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *Gateway) connectOnce(ctx context.Context) error {
	g.setStatus(StatusConnecting)
	g.log.Info("connecting to gateway", "url", g.url)
	conn, _, err := g.dialer.DialContext(ctx, g.dialURL(), nil)
	if err != nil {
		g.setStatus(StatusDisconnected)
		return err
	}

	g.setStatus(StatusAwaitingHello)
	hello, err := g.readFrame(conn, helloTimeout)
	if err != nil {
		conn.Close()
		return err
	}
	if hello.Op != OpcodeHello {
		conn.Close()
		return fmt.Errorf("%w: opcode %d before hello", ErrProtocol, hello.Op)
	}
	var h helloPayload
	if err := g.codec.Unmarshal(hello.D, &h); err != nil {
		conn.Close()
		return fmt.Errorf("%w: hello payload: %v", ErrDecode, err)
	}
	interval := time.Duration(h.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		conn.Close()
		return fmt.Errorf("%w: heartbeat interval %v", ErrProtocol, interval)
	}

	hb := newHeartbeat(interval, g.missLimit, g.sendHeartbeat, g.session.Sequence, g.missedHeartbeat, &g.latency, g.log)
	g.mu.Lock()
	g.conn = conn
	g.hb = hb
	g.mu.Unlock()
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		hb.run()
	}()

	resumed := g.session.Resumable()
	if resumed {
		g.setStatus(StatusResuming)
		g.mu.RLock()
		token := g.token
		g.mu.RUnlock()
		err = g.send(ctx, OpcodeResume, resumePayload{
			Token:     token,
			SessionID: g.session.ID(),
			Seq:       g.session.Sequence(),
		})
	} else {
		g.setStatus(StatusIdentifying)
		err = g.send(ctx, OpcodeIdentify, g.identify())
	}
	if err != nil {
		g.abortHandshake(conn, hb)
		return err
	}

	if !resumed {
		if err := g.awaitReady(conn); err != nil {
			g.abortHandshake(conn, hb)
			return err
		}
	}

	// A resume carries no fresh ready; the server replays straight into the
	// normal read path.
	g.setStatus(StatusReady)
	g.log.Info("gateway is ready", "resumed", resumed)
	done := make(chan struct{})
	g.mu.Lock()
	g.listenDone = done
	g.mu.Unlock()
	hb.arm()
	g.wg.Add(1)
	go g.listen(conn, done)
	if g.onOpen != nil {
		g.onOpen(resumed)
	}
	return nil
}

// awaitReady drives the tail of a fresh identify: everything until the ready
// dispatch lands.
func (g *Gateway) awaitReady(conn *websocket.Conn) error {
	for {
		f, err := g.readFrame(conn, readyTimeout)
		if err != nil {
			return err
		}
		switch f.Op {
		case OpcodeDispatch:
			if f.T != structs.EventReady {
				return fmt.Errorf("%w: dispatch %q before ready", ErrProtocol, f.T)
			}
			var info readyInfo
			if err := g.codec.Unmarshal(f.D, &info); err != nil {
				return fmt.Errorf("%w: ready payload: %v", ErrDecode, err)
			}
			g.session.Apply(info.SessionID, info.ResumeGatewayURL)
			g.session.StoreSequence(f.S)
			g.dispatch(f)
			return nil
		case OpcodeHeartbeat:
			g.heartbeatNow()
		case OpcodeHeartbeatAck:
			g.heartbeatAck()
		case OpcodeInvalidSession:
			// The server wants a clean identify after a polite pause.
			g.session.Clear()
			g.invalidSessionWait()
			if err := g.send(g.ctx, OpcodeIdentify, g.identify()); err != nil {
				return err
			}
		default:
			g.log.Debug("frame ignored during handshake", "frame", f)
		}
	}
}

func (g *Gateway) listen(conn *websocket.Conn, done chan struct{}) {
	defer g.wg.Done()
	defer close(done)
	for {
		select {
		case <-g.ctx.Done():
			return
		default:
		}
		if !g.ownsConn(conn) {
			// A newer connection took over; this loop serves the old one.
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if g.closed.Load() || g.ctx.Err() != nil || !g.ownsConn(conn) {
				return
			}
			g.handleReadError(err)
			return
		}
		f, err := g.decode(data)
		if err != nil {
			g.log.Warn("dropping malformed frame", "error", err)
			continue
		}
		g.handleFrame(f)
	}
}

func (g *Gateway) handleFrame(f *Frame) {
	switch f.Op {
	case OpcodeDispatch:
		// Watermark first: a crash mid-processing still resumes past this
		// frame.
		g.session.StoreSequence(f.S)
		g.dispatch(f)
	case OpcodeHeartbeat:
		g.heartbeatNow()
	case OpcodeHeartbeatAck:
		g.heartbeatAck()
	case OpcodeReconnect:
		g.log.Info("server requested reconnect")
		g.degrade(nil, 0)
	case OpcodeInvalidSession:
		var resumable bool
		_ = g.codec.Unmarshal(f.D, &resumable)
		if !resumable {
			g.session.Clear()
		}
		g.degrade(fmt.Errorf("session invalidated (resumable=%v)", resumable), g.invalidSessionDelay())
	case OpcodeHello:
		g.log.Warn("hello after handshake, dropping frame")
	default:
		g.log.Warn("unknown opcode, dropping frame", "op", f.Op)
	}
}

func (g *Gateway) dispatch(f *Frame) {
	if g.onDispatch != nil {
		g.onDispatch(f.T, f.D)
	}
}

func (g *Gateway) handleReadError(err error) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		err = closeCodeError(ce.Code)
		if isFatal(err) {
			g.log.Error("gateway closed", "error", err)
			g.stop(err)
			return
		}
	}
	g.degrade(err, 0)
}

func (g *Gateway) missedHeartbeat() {
	g.degrade(ErrMissedHeartbeat, 0)
}

// degrade tears the connection down and reconnects in the background.
// Concurrent triggers (read error racing a missed heartbeat) collapse into
// one reconnect.
func (g *Gateway) degrade(cause error, wait time.Duration) {
	if g.closed.Load() || g.ctx.Err() != nil {
		return
	}
	if !g.reconnecting.CompareAndSwap(false, true) {
		return
	}
	g.setStatus(StatusDegraded)
	if cause != nil {
		g.log.Warn("gateway degraded", "error", cause)
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.reconnecting.Store(false)
		g.reconnect(wait)
	}()
}

func (g *Gateway) reconnect(wait time.Duration) {
	g.teardown()
	// Joining the old read loop before dialing keeps dispatches strictly
	// ordered across the reconnect.
	g.awaitListener()
	g.setStatus(StatusReconnecting)
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-g.ctx.Done():
			return
		}
	}
	if err := g.connect(g.ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		g.log.Error("gateway reconnect failed", "error", err)
		g.stop(err)
	}
}

// Close shuts the gateway down for good: no further reconnects, transport
// closed, heartbeat stopped, goroutines joined.
func (g *Gateway) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	g.mu.RLock()
	conn := g.conn
	g.mu.RUnlock()
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	}
	g.stop(nil)
	g.wg.Wait()
	return nil
}

// stop records the terminal error, cancels everything and closes Done.
// First caller wins; a clean Close records nil.
func (g *Gateway) stop(err error) {
	g.stopOnce.Do(func() {
		if err != nil && !errors.Is(err, context.Canceled) {
			g.err = err
		}
		g.setStatus(StatusClosed)
		if g.cancel != nil {
			g.cancel()
		}
		g.teardown()
		close(g.done)
	})
}

func (g *Gateway) teardown() {
	g.mu.Lock()
	hb := g.hb
	conn := g.conn
	g.hb = nil
	g.conn = nil
	g.mu.Unlock()
	if hb != nil {
		hb.halt()
	}
	if conn != nil {
		conn.Close()
	}
}

func (g *Gateway) abortHandshake(conn *websocket.Conn, hb *heartbeat) {
	hb.halt()
	g.mu.Lock()
	if g.conn == conn {
		g.conn = nil
	}
	if g.hb == hb {
		g.hb = nil
	}
	g.mu.Unlock()
	conn.Close()
}

// Done closes once the gateway has stopped for good, by Close or fatal
// error.
func (g *Gateway) Done() <-chan struct{} { return g.done }

// Err reports why the gateway stopped. Nil until Done closes and after a
// clean Close.
func (g *Gateway) Err() error {
	select {
	case <-g.done:
		return g.err
	default:
		return nil
	}
}

func (g *Gateway) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Latency is the round trip of the last acknowledged heartbeat.
func (g *Gateway) Latency() time.Duration {
	return time.Duration(g.latency.Load())
}

// UpdatePresence advertises a new status on the live connection. The status
// also seeds any later identify, so it survives a session loss. The custom
// status does not; identify has no field for it.
func (g *Gateway) UpdatePresence(ctx context.Context, status structs.Status, custom *string) error {
	g.mu.Lock()
	g.presence = status
	g.mu.Unlock()
	return g.send(ctx, OpcodePresenceUpdate, presencePayload{Status: status, CustomStatus: custom})
}

func (g *Gateway) setStatus(s Status) {
	g.mu.Lock()
	if g.status == StatusClosed {
		g.mu.Unlock()
		return
	}
	old := g.status
	g.status = s
	g.mu.Unlock()
	if old != s {
		g.log.Debug("gateway status", "from", old, "to", s)
	}
}

func (g *Gateway) ownsConn(conn *websocket.Conn) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conn == conn
}

func (g *Gateway) awaitListener() {
	g.mu.RLock()
	done := g.listenDone
	g.mu.RUnlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-g.ctx.Done():
	}
}

func (g *Gateway) heartbeatAck() {
	g.mu.RLock()
	hb := g.hb
	g.mu.RUnlock()
	if hb != nil {
		hb.ack()
	}
}

func (g *Gateway) heartbeatNow() {
	g.mu.RLock()
	hb := g.hb
	g.mu.RUnlock()
	if hb != nil {
		hb.requestBeat()
	}
}

func (g *Gateway) sendHeartbeat(seq uint64) error {
	return g.send(g.ctx, OpcodeHeartbeat, seq)
}

func (g *Gateway) identify() identifyPayload {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return identifyPayload{
		Token:  g.token,
		Device: structs.DeviceDesktop,
		Status: g.presence,
	}
}

// send encodes and writes one frame under the outbound budget. No lock is
// held while waiting on the limiter.
func (g *Gateway) send(ctx context.Context, op Opcode, d any) error {
	var payload []byte
	if d != nil {
		var err error
		payload, err = g.codec.Marshal(d)
		if err != nil {
			return err
		}
	}
	data, err := g.codec.EncodeFrame(&Frame{Op: op, D: payload})
	if err != nil {
		return err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return ErrNotConnected
	}
	_ = g.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return g.conn.WriteMessage(g.codec.MessageType(), data)
}

func (g *Gateway) readFrame(conn *websocket.Conn, timeout time.Duration) (*Frame, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	_, data, err := conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, closeCodeError(ce.Code)
		}
		return nil, err
	}
	return g.decode(data)
}

func (g *Gateway) decode(data []byte) (*Frame, error) {
	if g.compress {
		inflated, err := inflate(data)
		if err != nil {
			return nil, err
		}
		data = inflated
	}
	return g.codec.DecodeFrame(data)
}

func (g *Gateway) invalidSessionDelay() time.Duration {
	if g.invalidWait > 0 {
		return g.invalidWait
	}
	return time.Second + time.Duration(rand.Int63n(int64(4*time.Second)))
}

func (g *Gateway) invalidSessionWait() {
	select {
	case <-time.After(g.invalidSessionDelay()):
	case <-g.ctx.Done():
	}
}

// dialURL prefers the session's resume endpoint when one is held and tacks
// on the negotiated encoding.
func (g *Gateway) dialURL() string {
	base := g.url
	if u := g.session.ResumeURL(); g.session.Resumable() && u != "" {
		base = u
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := parsed.Query()
	q.Set("format", g.codec.Name())
	if g.compress {
		q.Set("compress", "zlib")
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
