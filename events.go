package adapt

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/hendrywilliam/adapt/structs"
)

// Event is one decoded gateway dispatch. Data holds a pointer to the payload
// struct for the event's type (*structs.MessageCreateEvent and friends); for
// event types this library does not know, Data holds the raw payload bytes.
type Event struct {
	Type structs.EventType
	Data any
}

// HandlerFunc runs on its own goroutine for each matching event. A non-nil
// return goes to the client error sink; a panic is recovered and surfaced as
// a *HandlerError. Neither takes the connection down.
type HandlerFunc func(c *Client, e *Event) error

// Registration identifies one registered handler. Remove unregisters it;
// removing twice is harmless.
type Registration struct {
	r *registration
}

func (reg Registration) Remove() {
	if reg.r != nil {
		reg.r.d.remove(reg.r)
	}
}

// HandlerError wraps a panic recovered from a handler.
type HandlerError struct {
	Event     *Event
	Recovered any
	Stack     []byte
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %q panicked: %v", e.Event.Type, e.Recovered)
}

type registration struct {
	d       *dispatcher
	t       structs.EventType
	fn      HandlerFunc
	once    bool
	removed bool
}

type waiter struct {
	check func(e *Event) bool
	ch    chan *Event
}

// dispatcher fans events out to handlers. Registration lists keep insertion
// order; a once handler leaves its list under the same lock hold that
// snapshots it, so it fires at most once no matter how dispatch and Remove
// interleave.
type dispatcher struct {
	mu       sync.Mutex
	handlers map[structs.EventType][]*registration
	waiters  map[structs.EventType][]*waiter
	closed   bool

	wg      sync.WaitGroup
	onError func(err error)
	log     *slog.Logger
}

func newDispatcher(log *slog.Logger, onError func(err error)) *dispatcher {
	return &dispatcher{
		handlers: make(map[structs.EventType][]*registration),
		waiters:  make(map[structs.EventType][]*waiter),
		onError:  onError,
		log:      log,
	}
}

func (d *dispatcher) add(t structs.EventType, fn HandlerFunc, once bool) Registration {
	r := &registration{d: d, t: t, fn: fn, once: once}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		r.removed = true
		return Registration{r: r}
	}
	d.handlers[t] = append(d.handlers[t], r)
	return Registration{r: r}
}

func (d *dispatcher) remove(r *registration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r.removed {
		return
	}
	r.removed = true
	d.handlers[r.t] = deleteRegistration(d.handlers[r.t], r)
}

func deleteRegistration(list []*registration, r *registration) []*registration {
	for i, cur := range list {
		if cur == r {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// dispatch runs every handler registered for the event's type, then the
// catch-alls, in registration order. The caller is the gateway read loop, so
// events reach this point one at a time in arrival order.
func (d *dispatcher) dispatch(c *Client, e *Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	var fns []HandlerFunc
	for _, t := range []structs.EventType{e.Type, structs.EventAny} {
		list := d.handlers[t]
		for _, r := range list {
			fns = append(fns, r.fn)
		}
		kept := list[:0]
		for _, r := range list {
			if r.once {
				r.removed = true
				continue
			}
			kept = append(kept, r)
		}
		d.handlers[t] = kept
	}
	var woken []*waiter
	remaining := d.waiters[e.Type][:0]
	for _, w := range d.waiters[e.Type] {
		if w.check == nil || w.check(e) {
			woken = append(woken, w)
			continue
		}
		remaining = append(remaining, w)
	}
	d.waiters[e.Type] = remaining
	d.wg.Add(len(fns))
	d.mu.Unlock()

	for _, fn := range fns {
		go d.invoke(c, e, fn)
	}
	for _, w := range woken {
		w.ch <- e
	}
}

func (d *dispatcher) invoke(c *Client, e *Event, fn HandlerFunc) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.report(&HandlerError{Event: e, Recovered: r, Stack: debug.Stack()})
		}
	}()
	if err := fn(c, e); err != nil {
		d.report(fmt.Errorf("handler for %q: %w", e.Type, err))
	}
}

func (d *dispatcher) report(err error) {
	if d.onError != nil {
		d.onError(err)
		return
	}
	d.log.Error("event handler failed", "error", err)
}

// wait blocks until an event of type t passes check, the context ends, or
// the dispatcher closes. A nil check matches the first event of the type.
func (d *dispatcher) wait(ctx context.Context, t structs.EventType, check func(e *Event) bool) (*Event, error) {
	w := &waiter{check: check, ch: make(chan *Event, 1)}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClientClosed
	}
	d.waiters[t] = append(d.waiters[t], w)
	d.mu.Unlock()

	select {
	case e := <-w.ch:
		if e == nil {
			return nil, ErrClientClosed
		}
		return e, nil
	case <-ctx.Done():
		d.mu.Lock()
		d.waiters[t] = deleteWaiter(d.waiters[t], w)
		d.mu.Unlock()
		return nil, ctx.Err()
	}
}

func deleteWaiter(list []*waiter, w *waiter) []*waiter {
	for i, cur := range list {
		if cur == w {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// close stops accepting events, wakes every waiter empty-handed and joins
// all in-flight handlers.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	waiters := d.waiters
	d.waiters = make(map[structs.EventType][]*waiter)
	d.mu.Unlock()

	for _, list := range waiters {
		for _, w := range list {
			close(w.ch)
		}
	}
	d.wg.Wait()
}
