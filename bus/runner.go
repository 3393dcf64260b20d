package bus

import (
	"time"

	"github.com/kyllingstad/coral/event"
	"github.com/kyllingstad/coral/model"
	"github.com/kyllingstad/coral/slave"
)

// Runner ties a reactor and an agent together into a complete slave
// process: create one, hand it an instance, and call Run.
type Runner struct {
	reactor *event.Reactor
	agent   *Agent
}

// NewRunner creates a reactor and an agent for the given instance. The
// endpoints may contain wildcards; the concrete values are available
// from the Bound... methods before Run is called.
func NewRunner(
	instance slave.Instance,
	controlEndpoint, dataPubEndpoint string,
	masterInactivityTimeout time.Duration,
) (*Runner, error) {
	reactor := event.NewReactor()
	agent, err := NewAgent(reactor, instance, controlEndpoint, dataPubEndpoint, masterInactivityTimeout)
	if err != nil {
		return nil, err
	}
	return &Runner{reactor: reactor, agent: agent}, nil
}

// BoundControlEndpoint returns the agent's concrete control endpoint.
func (r *Runner) BoundControlEndpoint() string {
	return r.agent.BoundControlEndpoint()
}

// BoundDataPubEndpoint returns the agent's concrete data-publish
// endpoint.
func (r *Runner) BoundDataPubEndpoint() string {
	return r.agent.BoundDataPubEndpoint()
}

// CurrentTime returns the simulated time the agent has advanced to.
func (r *Runner) CurrentTime() model.TimePoint {
	return r.agent.CurrentTime()
}

// Run drives the slave until the master terminates it or an error
// occurs.
func (r *Runner) Run() error {
	return r.reactor.Run()
}
