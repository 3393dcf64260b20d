package rfsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/sirupsen/logrus"

	"github.com/kyllingstad/coral/event"
	"github.com/kyllingstad/coral/protocol"
)

// Errors reported by the transport.
var (
	ErrBusy             = errors.New("a request is already in progress")
	ErrTimeout          = errors.New("the request timed out")
	ErrConnectionClosed = errors.New("the connection was closed")
	ErrMalformedReply   = errors.New("malformed reply")
)

// ResponseHandler receives the outcome of a request. On success err is
// nil and the remaining arguments carry the slave's reply; on failure err
// describes what went wrong and the remaining arguments are zero.
type ResponseHandler func(err error, state uint16, responseID, responseData []byte)

// Master is the requesting side of the protocol. It is bound to a
// reactor, which notifies it of incoming replies; every method must be
// called from the reactor's goroutine (or before the reactor runs).
type Master struct {
	reactor  *event.Reactor
	endpoint string
	sock     zmq4.Socket

	busy       bool
	timerID    int
	onComplete ResponseHandler
	closed     bool
}

// NewMaster creates a master connected to the given server endpoint and
// registers it with the reactor.
func NewMaster(reactor *event.Reactor, serverEndpoint string) (*Master, error) {
	m := &Master{
		reactor:  reactor,
		endpoint: serverEndpoint,
		timerID:  event.InvalidTimerID,
	}
	if err := m.connect(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Master) connect() error {
	sock := zmq4.NewReq(context.Background())
	if err := sock.Dial(m.endpoint); err != nil {
		sock.Close()
		return fmt.Errorf("connecting to %q: %w", m.endpoint, err)
	}
	m.sock = sock
	m.reactor.AddSocket(sock, func(r *event.Reactor, msg zmq4.Msg) error {
		return m.receiveReply(msg)
	})
	return nil
}

// SendEvent sends an event and arranges for onComplete to be called with
// the reply, or with ErrTimeout if none arrives within timeout. Only one
// request may be outstanding; a second call while busy returns ErrBusy.
func (m *Master) SendEvent(eventID, eventData []byte, timeout time.Duration, onComplete ResponseHandler) error {
	if m.closed {
		return ErrConnectionClosed
	}
	if m.busy {
		return ErrBusy
	}
	msg := zmq4.NewMsgFrom([]byte("EVENT"), eventID, eventData)
	if err := m.sock.Send(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	id, err := m.reactor.AddTimer(timeout, 1, func(*event.Reactor, int) error {
		m.handleTimeout()
		return nil
	})
	if err != nil {
		return err
	}
	m.timerID = id
	m.busy = true
	m.onComplete = onComplete
	logrus.Debugf("rfsm: sent %s to %s", eventID, m.endpoint)
	return nil
}

func (m *Master) receiveReply(msg zmq4.Msg) error {
	if !m.busy {
		// A reply from a request that has already timed out.
		logrus.Debugf("rfsm: discarding stale reply from %s", m.endpoint)
		return nil
	}
	m.cancelTimer()
	onComplete := m.finish()

	frames := msg.Frames
	if len(frames) != 3 {
		m.rebuild()
		onComplete(fmt.Errorf("%w: %d frames", ErrMalformedReply, len(frames)), 0, nil, nil)
		return nil
	}
	state, err := protocol.DecodeState(frames[0])
	if err != nil {
		m.rebuild()
		onComplete(fmt.Errorf("%w: %v", ErrMalformedReply, err), 0, nil, nil)
		return nil
	}
	logrus.Debugf("rfsm: reply from %s: state %s, response %s",
		m.endpoint, protocol.StateName(state), frames[1])
	onComplete(nil, state, frames[1], frames[2])
	return nil
}

func (m *Master) handleTimeout() {
	if !m.busy {
		return
	}
	m.timerID = event.InvalidTimerID
	onComplete := m.finish()
	// A REQ socket that missed its reply is stuck; tear it down and
	// start over.
	m.rebuild()
	logrus.Debugf("rfsm: request to %s timed out", m.endpoint)
	onComplete(ErrTimeout, 0, nil, nil)
}

// finish clears the outstanding-request bookkeeping and returns the
// pending handler, so a new request may be issued from inside it.
func (m *Master) finish() ResponseHandler {
	onComplete := m.onComplete
	m.busy = false
	m.onComplete = nil
	return onComplete
}

func (m *Master) cancelTimer() {
	if m.timerID != event.InvalidTimerID {
		_ = m.reactor.RemoveTimer(m.timerID)
		m.timerID = event.InvalidTimerID
	}
}

func (m *Master) rebuild() {
	m.reactor.RemoveSocket(m.sock)
	m.sock.Close()
	if err := m.connect(); err != nil {
		logrus.Warnf("rfsm: reconnecting to %s failed: %v", m.endpoint, err)
		m.closed = true
	}
}

// Close tears the master down. A pending request fails with
// ErrConnectionClosed.
func (m *Master) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.cancelTimer()
	if m.busy {
		onComplete := m.finish()
		onComplete(ErrConnectionClosed, 0, nil, nil)
	}
	m.reactor.RemoveSocket(m.sock)
	return m.sock.Close()
}
