package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/sirupsen/logrus"
)

// Socket is the part of a ZeroMQ socket the reactor needs in order to
// detect and read incoming messages.
type Socket interface {
	Recv() (zmq4.Msg, error)
}

// SocketHandler is called on the Run goroutine with each message received
// on a registered socket. A non-nil error stops the loop and is returned
// from Run.
type SocketHandler func(r *Reactor, msg zmq4.Msg) error

// TimerHandler is called on the Run goroutine each time a timer fires.
// A non-nil error stops the loop and is returned from Run.
type TimerHandler func(r *Reactor, id int) error

// ImmediateHandler is called on the Run goroutine for a one-shot event
// registered with AddImmediate.
type ImmediateHandler func(r *Reactor) error

// InvalidTimerID is a number which will never be returned by AddTimer.
const InvalidTimerID = -1

type socketEvent struct {
	reg *socketRegistration
	msg zmq4.Msg
	err error
}

type socketRegistration struct {
	socket   Socket
	handlers []SocketHandler
	removed  bool
	stop     chan struct{}
}

// Reactor is a single-threaded event loop that multiplexes three event
// sources: socket readability, timer firings and immediate (next-tick)
// events.
//
// Sockets with incoming messages are dispatched to their registered
// handler functions; when there are multiple handlers for one socket they
// are called in the order they were added. Timers are only active while
// the loop is running, i.e. between Run and Stop.
type Reactor struct {
	sockets     []*socketRegistration
	events      chan socketEvent
	timers      *timerHeap
	nextTimerID int
	nextSeq     int64
	inFlight    *timer // the timer whose handler is currently executing
	inFlightCut bool   // the in-flight timer was removed by its own handler
	immediates  []ImmediateHandler

	running       bool
	stopRequested bool
}

// NewReactor creates a reactor with no registered event sources.
func NewReactor() *Reactor {
	return &Reactor{
		events: make(chan socketEvent, 64),
		timers: newTimerHeap(),
	}
}

// AddSocket registers a handler to be invoked with every message received
// on the given socket. Multiple handlers may be registered for one
// socket; they are invoked in registration order.
//
// The reactor starts one internal reader goroutine per distinct socket.
// The caller remains responsible for closing the socket; closing it both
// deregisters it and terminates the reader.
func (r *Reactor) AddSocket(socket Socket, handler SocketHandler) {
	for _, reg := range r.sockets {
		if reg.socket == socket && !reg.removed {
			reg.handlers = append(reg.handlers, handler)
			return
		}
	}
	reg := &socketRegistration{
		socket:   socket,
		handlers: []SocketHandler{handler},
		stop:     make(chan struct{}),
	}
	r.sockets = append(r.sockets, reg)
	go r.pump(reg)
}

// pump forwards messages from one socket into the dispatch loop. It runs
// until the socket is removed or reading fails (e.g. the socket was
// closed).
func (r *Reactor) pump(reg *socketRegistration) {
	for {
		msg, err := reg.socket.Recv()
		select {
		case r.events <- socketEvent{reg: reg, msg: msg, err: err}:
		case <-reg.stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// RemoveSocket removes all handlers for the given socket. If called from
// inside a handler for that socket, no more handlers will be called for
// it, even for messages that have already been received. If the socket
// was never registered, RemoveSocket does nothing.
func (r *Reactor) RemoveSocket(socket Socket) {
	kept := r.sockets[:0]
	for _, reg := range r.sockets {
		if reg.socket == socket && !reg.removed {
			reg.removed = true
			close(reg.stop)
		} else {
			kept = append(kept, reg)
		}
	}
	r.sockets = kept
}

func (r *Reactor) removeRegistration(target *socketRegistration) {
	kept := r.sockets[:0]
	for _, reg := range r.sockets {
		if reg == target {
			reg.removed = true
			close(reg.stop)
		} else {
			kept = append(kept, reg)
		}
	}
	r.sockets = kept
}

// AddTimer adds a timer which fires every interval, count times in total.
// A count of -1 makes the timer fire indefinitely. If the loop is
// running, the first event fires interval after this call; otherwise it
// fires interval after Run is called. The returned id may later be used
// to remove the timer.
func (r *Reactor) AddTimer(interval time.Duration, count int, handler TimerHandler) (int, error) {
	if interval < 0 {
		return InvalidTimerID, fmt.Errorf("negative timer interval: %v", interval)
	}
	if count == 0 {
		return InvalidTimerID, errors.New("invalid timer count: 0")
	}
	r.nextTimerID++
	r.nextSeq++
	r.timers.add(&timer{
		id:        r.nextTimerID,
		nextFire:  time.Now().Add(interval),
		interval:  interval,
		remaining: count,
		handler:   handler,
		seq:       r.nextSeq,
	})
	return r.nextTimerID, nil
}

// RemoveTimer cancels a timer. It is safe to call from the timer's own
// handler.
func (r *Reactor) RemoveTimer(id int) error {
	if r.inFlight != nil && r.inFlight.id == id && !r.inFlightCut {
		r.inFlightCut = true
		return nil
	}
	if !r.timers.removeID(id) {
		return fmt.Errorf("invalid timer ID: %d", id)
	}
	return nil
}

// RestartTimerInterval resets the elapsed time for the current iteration
// of a timer to zero. It does not change the number of remaining events.
func (r *Reactor) RestartTimerInterval(id int) error {
	if r.inFlight != nil && r.inFlight.id == id && !r.inFlightCut {
		r.inFlight.nextFire = time.Now()
		return nil
	}
	t := r.timers.find(id)
	if t == nil {
		return fmt.Errorf("invalid timer ID: %d", id)
	}
	t.nextFire = time.Now().Add(t.interval)
	r.timers.fix(t)
	return nil
}

// AddImmediate queues a one-shot handler that runs before the next poll,
// in FIFO order with other immediates. Immediates registered while one is
// being dispatched run in the next tick. Queued immediates alone do not
// keep the loop running once all timers and sockets are gone; they are
// drained first.
func (r *Reactor) AddImmediate(handler ImmediateHandler) {
	r.immediates = append(r.immediates, handler)
}

// Run dispatches events until Stop is called or there are no sockets or
// timers left to wait on. Each tick processes, in order: the immediates
// queued at the start of the tick, then all expired timers in fire-time
// order, then ready sockets.
//
// If a handler returns an error, the loop stops and Run returns that
// error.
func (r *Reactor) Run() error {
	if r.running {
		return errors.New("reactor is already running")
	}
	r.running = true
	r.stopRequested = false
	defer func() { r.running = false }()

	// Timers only advance while the loop runs.
	r.restartAllTimerIntervals()

	for {
		imms := r.immediates
		r.immediates = nil
		for _, h := range imms {
			if err := h(r); err != nil {
				return err
			}
			if r.stopRequested {
				return nil
			}
		}

		now := time.Now()
		for r.timers.Len() > 0 && !r.timers.peek().nextFire.After(now) {
			if err := r.fireNextTimer(); err != nil {
				return err
			}
			if r.stopRequested {
				return nil
			}
		}

		if len(r.immediates) > 0 {
			continue
		}
		if r.timers.Len() == 0 && len(r.sockets) == 0 {
			return nil
		}

		var timerC <-chan time.Time
		var pollTimer *time.Timer
		if r.timers.Len() > 0 {
			d := time.Until(r.timers.peek().nextFire)
			if d < 0 {
				d = 0
			}
			pollTimer = time.NewTimer(d)
			timerC = pollTimer.C
		}
		select {
		case ev := <-r.events:
			if pollTimer != nil {
				pollTimer.Stop()
			}
			if err := r.dispatchSocketEvent(ev); err != nil {
				return err
			}
			if r.stopRequested {
				return nil
			}
		case <-timerC:
			// due timers fire at the top of the next tick
		}
	}
}

// Stop requests the loop to exit. It may be called from any handler; the
// loop stops once that handler returns, causing Run to return to its
// caller.
func (r *Reactor) Stop() {
	r.stopRequested = true
}

func (r *Reactor) dispatchSocketEvent(ev socketEvent) error {
	reg := ev.reg
	if reg.removed {
		return nil
	}
	if ev.err != nil {
		logrus.Debugf("reactor: receive failed, deregistering socket: %v", ev.err)
		r.removeRegistration(reg)
		return nil
	}
	handlers := make([]SocketHandler, len(reg.handlers))
	copy(handlers, reg.handlers)
	for _, h := range handlers {
		if reg.removed || r.stopRequested {
			break
		}
		if err := h(r, ev.msg); err != nil {
			return err
		}
	}
	return nil
}

// fireNextTimer pops the front timer, runs its handler, and requeues the
// timer unless the handler removed it or its count ran out.
func (r *Reactor) fireNextTimer() error {
	t := r.timers.removeFront()
	r.inFlight = t
	r.inFlightCut = false
	err := t.handler(r, t.id)
	r.inFlight = nil
	if r.inFlightCut {
		return err
	}
	if t.remaining > 0 {
		t.remaining--
	}
	if t.remaining != 0 {
		t.nextFire = t.nextFire.Add(t.interval)
		r.timers.add(t)
	}
	return err
}

func (r *Reactor) restartAllTimerIntervals() {
	t0 := time.Now()
	for _, t := range r.timers.timers {
		t.nextFire = t0.Add(t.interval)
	}
	r.timers.refix()
}
