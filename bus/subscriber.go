package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/sirupsen/logrus"

	"github.com/kyllingstad/coral/model"
	"github.com/kyllingstad/coral/protocol"
)

// Subscriber is the receiving half of the variable data plane: a SUB
// socket connected to the publishers of all peer slaves this slave
// consumes variables from, filtered down to the subscribed variables by
// their 4-byte frame headers.
type Subscriber struct {
	sock       zmq4.Socket
	frames     chan []byte
	done       chan struct{}
	subscribed map[model.Variable]bool
	values     map[model.Variable]model.ScalarValue
}

// NewSubscriber creates a subscriber that is not yet connected to any
// peer.
func NewSubscriber() *Subscriber {
	s := &Subscriber{
		sock:       zmq4.NewSub(context.Background()),
		frames:     make(chan []byte, 64),
		done:       make(chan struct{}),
		subscribed: make(map[model.Variable]bool),
		values:     make(map[model.Variable]model.ScalarValue),
	}
	go s.pump()
	return s
}

func (s *Subscriber) pump() {
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			return
		}
		select {
		case s.frames <- msg.Frames[0]:
		case <-s.done:
			return
		}
	}
}

// Connect connects the subscriber to the given publisher endpoints.
func (s *Subscriber) Connect(endpoints []string) error {
	for _, ep := range endpoints {
		if err := s.sock.Dial(ep); err != nil {
			return fmt.Errorf("connecting to peer %q: %w", ep, err)
		}
	}
	return nil
}

// Subscribe starts receiving frames for the given variable.
func (s *Subscriber) Subscribe(v model.Variable) error {
	header, err := protocol.EncodeDataHeader(v)
	if err != nil {
		return err
	}
	if err := s.sock.SetOption(zmq4.OptionSubscribe, string(header)); err != nil {
		return err
	}
	s.subscribed[v] = true
	return nil
}

// Unsubscribe stops receiving frames for the given variable.
func (s *Subscriber) Unsubscribe(v model.Variable) error {
	header, err := protocol.EncodeDataHeader(v)
	if err != nil {
		return err
	}
	if err := s.sock.SetOption(zmq4.OptionUnsubscribe, string(header)); err != nil {
		return err
	}
	delete(s.subscribed, v)
	return nil
}

// Update waits until a fresh frame has arrived for every subscribed
// variable, storing the received values. A negative timeout means wait
// indefinitely. On timeout the values received so far are kept, but
// Update returns an error.
func (s *Subscriber) Update(timeout time.Duration) error {
	fresh := make(map[model.Variable]bool, len(s.subscribed))
	var deadline <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for len(fresh) < len(s.subscribed) {
		select {
		case frame := <-s.frames:
			v, value, err := protocol.DecodeDataFrame(frame)
			if err != nil {
				logrus.Warnf("bus: discarding malformed variable frame: %v", err)
				continue
			}
			if !s.subscribed[v] {
				continue
			}
			s.values[v] = value
			fresh[v] = true
		case <-deadline:
			return fmt.Errorf("timed out waiting for variable values (%d of %d received)",
				len(fresh), len(s.subscribed))
		}
	}
	return nil
}

// Value returns the most recently received value of a subscribed
// variable.
func (s *Subscriber) Value(v model.Variable) (model.ScalarValue, bool) {
	value, ok := s.values[v]
	return value, ok
}

// Close disconnects the subscriber.
func (s *Subscriber) Close() error {
	close(s.done)
	return s.sock.Close()
}
