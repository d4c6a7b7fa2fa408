package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// heartbeat drives keep-alive frames at the server-provided interval and
// flags the connection dead once acknowledgements stop coming back. One
// instance serves one connection; reconnects build a fresh one.
type heartbeat struct {
	interval  time.Duration
	missLimit int

	send    func(seq uint64) error
	seq     func() uint64
	onMiss  func()
	latency *atomic.Int64

	log *slog.Logger

	acks   chan struct{}
	beats  chan struct{}
	stop   chan struct{}
	halted sync.Once
	armed  atomic.Bool

	// Owned by run; other goroutines talk through the channels above.
	pending bool
	sentAt  time.Time
	misses  int
}

func newHeartbeat(interval time.Duration, missLimit int, send func(uint64) error, seq func() uint64, onMiss func(), latency *atomic.Int64, log *slog.Logger) *heartbeat {
	if missLimit < 1 {
		missLimit = 1
	}
	return &heartbeat{
		interval:  interval,
		missLimit: missLimit,
		send:      send,
		seq:       seq,
		onMiss:    onMiss,
		latency:   latency,
		log:       log,
		acks:      make(chan struct{}, 1),
		beats:     make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
}

func (h *heartbeat) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-h.beats:
			h.sendBeat()
		case <-h.acks:
			if !h.pending {
				h.log.Debug("heartbeat ack with nothing outstanding")
				continue
			}
			h.pending = false
			h.misses = 0
			h.latency.Store(time.Since(h.sentAt).Nanoseconds())
		case <-ticker.C:
			if h.pending {
				if !h.armed.Load() {
					// Still handshaking; those reads carry their own
					// deadlines and the miss countdown has not started.
					continue
				}
				h.misses++
				h.log.Warn("heartbeat ack missing", "misses", h.misses, "limit", h.missLimit)
				if h.misses >= h.missLimit {
					h.onMiss()
					return
				}
				continue
			}
			h.sendBeat()
		}
	}
}

func (h *heartbeat) sendBeat() {
	if err := h.send(h.seq()); err != nil {
		// The read loop will notice a broken connection on its own.
		h.log.Error("failed to send heartbeat", "error", err)
		return
	}
	h.pending = true
	h.sentAt = time.Now()
}

// arm starts the miss countdown. The gateway arms the monitor once the
// handshake is done, so a stalled handshake is handled by the connect loop
// alone and never by a competing reconnect.
func (h *heartbeat) arm() {
	h.armed.Store(true)
}

// ack records the server acknowledgement. Called from the read loop.
func (h *heartbeat) ack() {
	select {
	case h.acks <- struct{}{}:
	default:
	}
}

// requestBeat answers a server-initiated heartbeat probe out of cycle.
func (h *heartbeat) requestBeat() {
	select {
	case h.beats <- struct{}{}:
	default:
	}
}

func (h *heartbeat) halt() {
	h.halted.Do(func() { close(h.stop) })
}
