package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kyllingstad/coral/event"
	"github.com/kyllingstad/coral/model"
	"github.com/kyllingstad/coral/protocol"
	"github.com/kyllingstad/coral/rfsm"
	"github.com/kyllingstad/coral/slave"
)

// stateHandler handles one control event in a particular agent state and
// returns the reply. A non-nil error becomes a protocol-error reply and
// leaves the state unchanged.
type stateHandler func(eventID string, eventData []byte) (uint16, []byte, []byte, error)

// Agent contains the state of one slave and responds to requests from
// the master in a manner appropriate for the current state. It also owns
// the publish and subscribe sockets used for per-step variable exchange
// with peer slaves.
type Agent struct {
	reactor    *event.Reactor
	instance   slave.Instance
	control    *rfsm.Slave
	publisher  *Publisher
	subscriber *Subscriber

	handler  stateHandler
	id       model.SlaveID
	typeDesc model.SlaveTypeDescription

	// couplings maps each connected local input to the remote output
	// that feeds it.
	couplings map[model.VariableID]model.Variable

	currentTime  model.TimePoint
	lastStepSize model.TimeDuration
	pendingTime  model.TimePoint
	pendingStep  model.TimeDuration
	stepID       model.StepID

	started bool
	broken  bool

	variableRecvTimeout time.Duration
	inactivity          *event.Timeout
}

// NewAgent creates an agent for the given instance, binds its control
// and data-publish endpoints (wildcards allowed), and registers it with
// the reactor. If masterInactivityTimeout is positive, the reactor run
// fails when no control message arrives for that long.
func NewAgent(
	reactor *event.Reactor,
	instance slave.Instance,
	controlEndpoint, dataPubEndpoint string,
	masterInactivityTimeout time.Duration,
) (*Agent, error) {
	typeDesc, err := instance.TypeDescription()
	if err != nil {
		return nil, fmt.Errorf("describing slave instance: %w", err)
	}
	a := &Agent{
		reactor:             reactor,
		instance:            instance,
		typeDesc:            typeDesc,
		couplings:           make(map[model.VariableID]model.Variable),
		stepID:              model.InvalidStepID,
		variableRecvTimeout: time.Second,
	}
	a.handler = a.helloHandler

	a.publisher, err = NewPublisher(dataPubEndpoint)
	if err != nil {
		return nil, err
	}
	a.subscriber = NewSubscriber()
	a.control, err = rfsm.NewSlave(reactor, controlEndpoint, a)
	if err != nil {
		a.publisher.Close()
		a.subscriber.Close()
		return nil, err
	}
	logrus.Infof("bus: slave agent bound to control %s, data %s",
		a.control.BoundEndpoint(), a.publisher.BoundEndpoint())

	if masterInactivityTimeout > 0 {
		a.inactivity, err = event.NewTimeout(reactor, masterInactivityTimeout,
			func(after time.Duration) error {
				return fmt.Errorf("timed out after %v without communication from master", after)
			})
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// BoundControlEndpoint returns the endpoint on which the agent receives
// control messages.
func (a *Agent) BoundControlEndpoint() string {
	return a.control.BoundEndpoint()
}

// BoundDataPubEndpoint returns the endpoint on which the agent publishes
// its output variables.
func (a *Agent) BoundDataPubEndpoint() string {
	return a.publisher.BoundEndpoint()
}

// CurrentTime returns the simulated time the agent has advanced to.
func (a *Agent) CurrentTime() model.TimePoint {
	return a.currentTime
}

// HandleEvent implements rfsm.Handler by forwarding to the handler for
// the agent's current state. TERMINATE is accepted in every state.
func (a *Agent) HandleEvent(eventID, eventData []byte) (uint16, []byte, []byte, error) {
	if a.inactivity != nil {
		a.inactivity.Reset()
	}
	ev := string(eventID)
	if ev == protocol.EventTerminate {
		return a.terminate()
	}
	if a.broken {
		return 0, nil, nil, errors.New("slave instance is broken")
	}
	return a.handler(ev, eventData)
}

// helloHandler handles the state before the first message.
func (a *Agent) helloHandler(ev string, data []byte) (uint16, []byte, []byte, error) {
	if ev != protocol.EventHello {
		return 0, nil, nil, fmt.Errorf("unexpected event %q before handshake", ev)
	}
	var hello protocol.HelloData
	if err := protocol.Decode(data, &hello); err != nil {
		return 0, nil, nil, err
	}
	if hello.Protocol != protocol.ProtocolVersion {
		return 0, nil, nil, fmt.Errorf("master requires unsupported protocol version %d", hello.Protocol)
	}
	reply, err := protocol.Encode(protocol.HelloData{Protocol: protocol.ProtocolVersion})
	if err != nil {
		return 0, nil, nil, err
	}
	a.handler = a.connectingHandler
	return protocol.StateConnecting, []byte(protocol.ResponseHello), reply, nil
}

// connectingHandler waits for the execution parameters.
func (a *Agent) connectingHandler(ev string, data []byte) (uint16, []byte, []byte, error) {
	if ev != protocol.EventSetup {
		return 0, nil, nil, fmt.Errorf("unexpected event %q in CONNECTING state", ev)
	}
	var setup protocol.SetupData
	if err := protocol.Decode(data, &setup); err != nil {
		return 0, nil, nil, err
	}
	logrus.Infof("bus: slave %q (ID %d) configured for t = [%g, %g]",
		setup.SlaveName, setup.SlaveID, setup.StartTime, setup.StopTime)
	a.id = setup.SlaveID
	if err := a.instance.Setup(
		setup.SlaveName,
		setup.ExecutionName,
		setup.StartTime,
		setup.StopTime,
		setup.AdaptiveStepSize,
		setup.RelativeTolerance,
	); err != nil {
		return a.instanceFailed(err)
	}
	a.currentTime = setup.StartTime
	if setup.VariableRecvTimeoutMS >= 0 {
		a.variableRecvTimeout = time.Duration(setup.VariableRecvTimeoutMS) * time.Millisecond
	} else {
		a.variableRecvTimeout = -1
	}
	a.handler = a.initHandler
	return protocol.StateInit, []byte(protocol.ResponseOK), nil, nil
}

// initHandler handles variable initialisation and peer wiring.
func (a *Agent) initHandler(ev string, data []byte) (uint16, []byte, []byte, error) {
	switch ev {
	case protocol.EventSetVars:
		return a.handleSetVars(data)
	case protocol.EventGetVars:
		return a.handleGetVars(data)
	case protocol.EventSetPeers:
		return a.handleSetPeers(data)
	case protocol.EventDescribe:
		reply, err := protocol.Encode(protocol.FromTypeDescription(a.typeDesc))
		if err != nil {
			return 0, nil, nil, err
		}
		return protocol.StateInit, []byte(protocol.ResponseDescription), reply, nil
	case protocol.EventStartSim:
		if err := a.instance.StartSimulation(); err != nil {
			return a.instanceFailed(err)
		}
		a.started = true
		a.handler = a.readyHandler
		return protocol.StateReady, []byte(protocol.ResponseOK), nil, nil
	}
	return 0, nil, nil, fmt.Errorf("unexpected event %q in INIT state", ev)
}

// readyHandler performs time steps and priming rounds.
func (a *Agent) readyHandler(ev string, data []byte) (uint16, []byte, []byte, error) {
	if ev == protocol.EventResendVars {
		return a.resendVars()
	}
	if ev != protocol.EventStep {
		return 0, nil, nil, fmt.Errorf("unexpected event %q in READY state", ev)
	}
	var step protocol.StepData
	if err := protocol.Decode(data, &step); err != nil {
		return 0, nil, nil, err
	}
	ok, err := a.step(step)
	if err != nil {
		return 0, nil, nil, err
	}
	if !ok {
		a.handler = a.stepFailedHandler
		return protocol.StateStepFailed, []byte(protocol.ResponseStepFailed), nil, nil
	}
	a.handler = a.publishedHandler
	return protocol.StatePublished, []byte(protocol.ResponseStepOK), nil, nil
}

// publishedHandler waits for the master to accept the step.
func (a *Agent) publishedHandler(ev string, data []byte) (uint16, []byte, []byte, error) {
	if ev != protocol.EventAcceptStep {
		return 0, nil, nil, fmt.Errorf("unexpected event %q in PUBLISHED state", ev)
	}
	a.currentTime = a.pendingTime + a.pendingStep
	a.lastStepSize = a.pendingStep
	a.handler = a.readyHandler
	return protocol.StateReady, []byte(protocol.ResponseOK), nil, nil
}

// stepFailedHandler only lets the (globally handled) TERMINATE through.
func (a *Agent) stepFailedHandler(ev string, data []byte) (uint16, []byte, []byte, error) {
	return 0, nil, nil, fmt.Errorf("unexpected event %q in STEP FAILED state", ev)
}

// terminatedHandler rejects everything after termination.
func (a *Agent) terminatedHandler(ev string, data []byte) (uint16, []byte, []byte, error) {
	return 0, nil, nil, fmt.Errorf("slave has terminated, cannot handle %q", ev)
}

// step carries out one Jacobi-coupled time step: publish the outputs
// computed so far, receive one frame per subscribed input, apply them,
// then advance the model.
func (a *Agent) step(step protocol.StepData) (bool, error) {
	a.stepID = step.StepID
	a.pendingTime = step.TimePoint
	a.pendingStep = step.StepSize

	if err := a.publishAll(); err != nil {
		return false, err
	}
	if err := a.receiveAndApplyInputs(); err != nil {
		return false, err
	}
	ok, err := a.instance.DoStep(step.TimePoint, step.StepSize)
	if err != nil {
		return a.instanceFailedStep(err)
	}
	if !ok {
		logrus.Warnf("bus: step %d (t=%g, dt=%g) failed: step size too long",
			step.StepID, step.TimePoint, step.StepSize)
	}
	return ok, nil
}

// resendVars is the priming round that works around the pub/sub "slow
// joiner" problem: every slave publishes its outputs and waits for all
// its inputs, proving the subscriptions are live. The master retries it
// until every slave succeeds.
func (a *Agent) resendVars() (uint16, []byte, []byte, error) {
	if err := a.publishAll(); err != nil {
		return 0, nil, nil, err
	}
	logrus.Debugf("bus: waiting for variable values (timeout %v)", a.variableRecvTimeout)
	if err := a.receiveAndApplyInputs(); err != nil {
		return 0, nil, nil, err
	}
	return protocol.StateReady, []byte(protocol.ResponseOK), nil, nil
}

// receiveAndApplyInputs waits for one frame per subscribed input and
// forwards the values to the instance.
func (a *Agent) receiveAndApplyInputs() error {
	if len(a.couplings) == 0 {
		return nil
	}
	if err := a.subscriber.Update(a.variableRecvTimeout); err != nil {
		return err
	}
	for localID, remote := range a.couplings {
		value, ok := a.subscriber.Value(remote)
		if !ok {
			return fmt.Errorf("no value received for input variable %d", localID)
		}
		if ok, err := slave.SetVariable(a.instance, localID, value); err != nil {
			_, _, _, ierr := a.instanceFailed(err)
			return ierr
		} else if !ok {
			return fmt.Errorf("input variable %d rejected value %v", localID, value)
		}
	}
	return nil
}

// publishAll publishes the current value of every output variable.
func (a *Agent) publishAll() error {
	for _, v := range a.typeDesc.Variables {
		if v.Causality != model.OutputCausality {
			continue
		}
		value, err := slave.GetVariable(a.instance, v)
		if err != nil {
			_, _, _, ierr := a.instanceFailed(err)
			return ierr
		}
		if err := a.publisher.Publish(model.Variable{Slave: a.id, ID: v.ID}, value); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) handleSetVars(data []byte) (uint16, []byte, []byte, error) {
	var sv protocol.SetVarsData
	if err := protocol.Decode(data, &sv); err != nil {
		return 0, nil, nil, err
	}
	logrus.Debugf("bus: setting/connecting %d variables", len(sv.Settings))
	for _, setting := range sv.Settings {
		if setting.HasValue {
			value, err := setting.Value.ToScalarValue()
			if err != nil {
				return 0, nil, nil, err
			}
			ok, err := slave.SetVariable(a.instance, setting.VariableID, value)
			if err != nil {
				return a.instanceFailed(err)
			}
			if !ok {
				return 0, nil, nil, fmt.Errorf(
					"failed to set the value of variable with ID %d", setting.VariableID)
			}
		}
		if setting.Connected {
			remote := model.Variable{Slave: setting.SourceSlave, ID: setting.SourceVariable}
			if err := a.couple(remote, setting.VariableID); err != nil {
				return 0, nil, nil, err
			}
		}
	}
	return protocol.StateInit, []byte(protocol.ResponseOK), nil, nil
}

func (a *Agent) handleGetVars(data []byte) (uint16, []byte, []byte, error) {
	var gv protocol.GetVarsData
	if err := protocol.Decode(data, &gv); err != nil {
		return 0, nil, nil, err
	}
	values := protocol.VarValuesData{VariableIDs: gv.VariableIDs}
	for _, id := range gv.VariableIDs {
		v, ok := a.typeDesc.Variable(id)
		if !ok {
			return 0, nil, nil, fmt.Errorf("unknown variable ID %d", id)
		}
		value, err := slave.GetVariable(a.instance, v)
		if err != nil {
			return a.instanceFailed(err)
		}
		payload, err := protocol.FromScalarValue(value)
		if err != nil {
			return 0, nil, nil, err
		}
		values.Values = append(values.Values, payload)
	}
	reply, err := protocol.Encode(values)
	if err != nil {
		return 0, nil, nil, err
	}
	return protocol.StateInit, []byte(protocol.ResponseValues), reply, nil
}

func (a *Agent) handleSetPeers(data []byte) (uint16, []byte, []byte, error) {
	var peers protocol.SetPeersData
	if err := protocol.Decode(data, &peers); err != nil {
		return 0, nil, nil, err
	}
	logrus.Debugf("bus: connecting to %d peers", len(peers.Endpoints))
	if err := a.subscriber.Connect(peers.Endpoints); err != nil {
		return 0, nil, nil, err
	}
	return protocol.StateInit, []byte(protocol.ResponseOK), nil, nil
}

// couple connects a local input variable to a remote output, replacing
// any previous coupling of that input.
func (a *Agent) couple(remote model.Variable, localInput model.VariableID) error {
	a.decouple(localInput)
	if remote.Empty() {
		return nil
	}
	if err := a.subscriber.Subscribe(remote); err != nil {
		return err
	}
	a.couplings[localInput] = remote
	return nil
}

func (a *Agent) decouple(localInput model.VariableID) {
	remote, ok := a.couplings[localInput]
	if !ok {
		return
	}
	delete(a.couplings, localInput)
	for _, other := range a.couplings {
		if other == remote {
			return
		}
	}
	_ = a.subscriber.Unsubscribe(remote)
}

// terminate ends the simulation if it was started and the instance is not
// broken, releases the data sockets and stops the reactor once the reply
// has been sent.
func (a *Agent) terminate() (uint16, []byte, []byte, error) {
	logrus.Infof("bus: slave agent terminating at t=%g", a.currentTime)
	if a.started && !a.broken {
		if err := a.instance.EndSimulation(); err != nil {
			a.broken = true
			logrus.Warnf("bus: ending simulation: %v", err)
		}
		a.started = false
	}
	if a.inactivity != nil {
		_ = a.inactivity.Set(-1)
		a.inactivity = nil
	}
	a.handler = a.terminatedHandler
	// The reply must leave before the loop stops; it is sent when this
	// handler returns, while the stop runs at the next tick.
	a.reactor.AddImmediate(func(r *event.Reactor) error {
		a.publisher.Close()
		a.subscriber.Close()
		_ = a.control.Close()
		r.Stop()
		return nil
	})
	return protocol.StateTerminated, []byte(protocol.ResponseOK), nil, nil
}

// instanceFailed marks the instance broken. The agent is unusable
// afterwards.
func (a *Agent) instanceFailed(err error) (uint16, []byte, []byte, error) {
	a.broken = true
	logrus.Errorf("bus: slave instance failed: %v", err)
	return 0, nil, nil, fmt.Errorf("slave instance failed: %w", err)
}

func (a *Agent) instanceFailedStep(err error) (bool, error) {
	_, _, _, ierr := a.instanceFailed(err)
	return false, ierr
}
