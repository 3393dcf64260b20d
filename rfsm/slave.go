package rfsm

import (
	"bytes"
	"context"

	"github.com/go-zeromq/zmq4"
	"github.com/sirupsen/logrus"

	"github.com/kyllingstad/coral/event"
	"github.com/kyllingstad/coral/internal/zmqx"
	"github.com/kyllingstad/coral/protocol"
)

// Handler processes one event on the slave side and returns the
// (possibly new) state tag together with the response. A non-nil error
// becomes a protocol-level error reply and leaves the state unchanged.
type Handler interface {
	HandleEvent(eventID, eventData []byte) (state uint16, responseID, responseData []byte, err error)
}

// Slave is the replying side of the protocol. It binds to an endpoint
// (wildcard address and port are allowed) and forwards each incoming
// event to its handler.
type Slave struct {
	reactor *event.Reactor
	sock    zmq4.Socket
	bound   string
	state   uint16
	handler Handler
}

// NewSlave binds a slave to the given endpoint and registers it with the
// reactor.
func NewSlave(reactor *event.Reactor, endpoint string, handler Handler) (*Slave, error) {
	sock := zmq4.NewRep(context.Background())
	bound, err := zmqx.Listen(sock, endpoint)
	if err != nil {
		sock.Close()
		return nil, err
	}
	s := &Slave{
		reactor: reactor,
		sock:    sock,
		bound:   bound,
		state:   protocol.StateIndeterminate,
		handler: handler,
	}
	reactor.AddSocket(sock, func(r *event.Reactor, msg zmq4.Msg) error {
		return s.receiveEvent(msg)
	})
	logrus.Debugf("rfsm: slave bound to %s", bound)
	return s, nil
}

// BoundEndpoint returns the endpoint to which the slave is bound. If the
// address was given as "*", the returned address is 0.0.0.0; if the port
// was given as "*", the actual port chosen by the OS is returned.
func (s *Slave) BoundEndpoint() string {
	return s.bound
}

func (s *Slave) receiveEvent(msg zmq4.Msg) error {
	frames := msg.Frames
	if len(frames) != 3 || !bytes.Equal(frames[0], []byte("EVENT")) {
		return s.replyError("malformed request")
	}
	state, responseID, responseData, err := s.handler.HandleEvent(frames[1], frames[2])
	if err != nil {
		logrus.Debugf("rfsm: handler failed on %s: %v", frames[1], err)
		return s.replyError(err.Error())
	}
	if len(responseID) == 0 {
		responseID = []byte(protocol.ResponseOK)
	}
	s.state = state
	return s.reply(state, responseID, responseData)
}

// replyError sends a protocol-error reply carrying the current (i.e.
// unchanged) state.
func (s *Slave) replyError(message string) error {
	data, err := protocol.Encode(protocol.ErrorData{Message: message})
	if err != nil {
		return err
	}
	return s.reply(s.state, []byte(protocol.ResponseError), data)
}

func (s *Slave) reply(state uint16, responseID, responseData []byte) error {
	msg := zmq4.NewMsgFrom(protocol.EncodeState(state), responseID, responseData)
	return s.sock.Send(msg)
}

// Close unbinds the slave and deregisters it from the reactor.
func (s *Slave) Close() error {
	s.reactor.RemoveSocket(s.sock)
	return s.sock.Close()
}
