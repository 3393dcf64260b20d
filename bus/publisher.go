package bus

import (
	"context"

	"github.com/go-zeromq/zmq4"

	"github.com/kyllingstad/coral/internal/zmqx"
	"github.com/kyllingstad/coral/model"
	"github.com/kyllingstad/coral/protocol"
)

// Publisher is the sending half of the variable data plane: a PUB socket
// on which a slave publishes one frame per output variable per step.
type Publisher struct {
	sock  zmq4.Socket
	bound string
}

// NewPublisher binds a publisher to the given endpoint, which may
// contain wildcards.
func NewPublisher(endpoint string) (*Publisher, error) {
	sock := zmq4.NewPub(context.Background())
	bound, err := zmqx.Listen(sock, endpoint)
	if err != nil {
		sock.Close()
		return nil, err
	}
	return &Publisher{sock: sock, bound: bound}, nil
}

// BoundEndpoint returns the concrete endpoint the publisher is bound to.
func (p *Publisher) BoundEndpoint() string {
	return p.bound
}

// Publish sends the current value of one variable to all subscribers.
func (p *Publisher) Publish(v model.Variable, value model.ScalarValue) error {
	frame, err := protocol.EncodeDataFrame(v, value)
	if err != nil {
		return err
	}
	return p.sock.Send(zmq4.NewMsg(frame))
}

// Close unbinds the publisher.
func (p *Publisher) Close() error {
	return p.sock.Close()
}
