package master

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kyllingstad/coral/event"
	"github.com/kyllingstad/coral/model"
	"github.com/kyllingstad/coral/protocol"
)

// SlaveLocator tells the controller where a slave listens: its control
// endpoint and its data-publish endpoint.
type SlaveLocator struct {
	Control string
	DataPub string
}

// Execution drives all slaves of a model through their lifecycle and the
// per-step exchange. The controller never routes variable values itself;
// slaves exchange them directly over their publish/subscribe sockets.
//
// Every protocol round is issued to all slaves in parallel and collected
// with WhenAll; the handler registered on the aggregate future advances
// the controller to the next round. A failure from any slave stops the
// simulation and terminates all slaves.
type Execution struct {
	reactor *event.Reactor
	name    string
	opts    ExecutionOptions
	model   *Model
	slaves  []*slaveController

	stepSize    model.TimeDuration
	currentTime model.TimePoint
	stepID      model.StepID
	failure     error
	terminating bool
}

// NewExecution creates a controller for the given frozen model. Every
// slave in the model must have a locator.
func NewExecution(
	reactor *event.Reactor,
	m *Model,
	locators map[string]SlaveLocator,
	opts ExecutionOptions,
) (*Execution, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Name == "" {
		opts.Name = "execution-" + uuid.NewString()
	}
	e := &Execution{
		reactor: reactor,
		name:    opts.Name,
		opts:    opts,
		model:   m,
	}
	for i, name := range m.SlaveNames() {
		locator, ok := locators[name]
		if !ok {
			return nil, fmt.Errorf("no endpoints given for slave %q", name)
		}
		td, _ := m.SlaveType(name)
		sc, err := newSlaveController(
			reactor, name, model.SlaveID(i+1), td, locator, opts.CommTimeout)
		if err != nil {
			return nil, err
		}
		e.slaves = append(e.slaves, sc)
	}
	if len(e.slaves) == 0 {
		return nil, fmt.Errorf("the model contains no slaves")
	}
	return e, nil
}

// Simulate runs the simulation from the start time to the max time with
// a fixed step size, blocking until it completes or fails. All slaves
// are terminated in either case.
func (e *Execution) Simulate(stepSize model.TimeDuration) error {
	if stepSize <= 0 {
		return fmt.Errorf("step size must be positive, got %g", stepSize)
	}
	if math.IsInf(e.opts.MaxTime, 1) {
		return fmt.Errorf("simulating requires a finite max time")
	}
	e.stepSize = stepSize
	e.currentTime = e.opts.StartTime
	e.stepID = 0

	logrus.Infof("master: execution %q: %d slaves, t = [%g, %g], dt = %g",
		e.name, len(e.slaves), e.opts.StartTime, e.opts.MaxTime, stepSize)
	e.phaseHello()
	if err := e.reactor.Run(); err != nil {
		return err
	}
	if e.failure != nil {
		return e.failure
	}
	logrus.Infof("master: execution %q finished at t=%g", e.name, e.currentTime)
	return nil
}

// each issues one call per slave and collects the futures in slave
// order.
func (e *Execution) each(call func(*slaveController) *event.Future[reply]) []*event.Future[reply] {
	futures := make([]*event.Future[reply], len(e.slaves))
	for i, sc := range e.slaves {
		futures[i] = call(sc)
	}
	return futures
}

// round runs one parallel protocol round: all futures are awaited, any
// failure aborts the simulation, and onOK receives the per-slave
// replies.
func (e *Execution) round(futures []*event.Future[reply], onOK func(results []event.AnyResult[reply])) {
	all, err := event.WhenAll(futures)
	if err != nil {
		e.fail(err)
		return
	}
	// The aggregate future never fails; per-slave errors are inspected
	// in the results.
	_ = all.OnCompletion(func(results []event.AnyResult[reply]) error {
		if e.terminating {
			return nil
		}
		for _, res := range results {
			if res.Err != nil {
				e.fail(res.Err)
				return nil
			}
		}
		onOK(results)
		return nil
	}, nil)
}

func (e *Execution) phaseHello() {
	e.round(e.each((*slaveController).hello), func([]event.AnyResult[reply]) {
		logrus.Debugf("master: all %d slaves connected", len(e.slaves))
		e.phaseSetup()
	})
}

func (e *Execution) phaseSetup() {
	e.round(e.each(func(sc *slaveController) *event.Future[reply] {
		return sc.setup(e.name, e.opts)
	}), func([]event.AnyResult[reply]) {
		e.phaseSetVars()
	})
}

func (e *Execution) phaseSetVars() {
	e.round(e.each(func(sc *slaveController) *event.Future[reply] {
		settings, err := e.variableSettings(sc)
		if err != nil {
			return failedFuture[reply](e.reactor, err)
		}
		return sc.setVars(settings)
	}), func([]event.AnyResult[reply]) {
		e.phaseSetPeers()
	})
}

func (e *Execution) phaseSetPeers() {
	e.round(e.each(func(sc *slaveController) *event.Future[reply] {
		return sc.setPeers(e.peerEndpoints(sc))
	}), func([]event.AnyResult[reply]) {
		e.phaseStart()
	})
}

func (e *Execution) phaseStart() {
	e.round(e.each((*slaveController).startSimulation), func([]event.AnyResult[reply]) {
		logrus.Infof("master: execution %q started", e.name)
		e.phasePrime(1)
	})
}

// maxPrimeAttempts bounds the priming rounds that establish the pub/sub
// subscriptions before the first step ("slow joiner" workaround).
const maxPrimeAttempts = 10

// phasePrime makes every slave publish its outputs and wait for its
// inputs once, retrying until the whole round succeeds. Only then are
// the data-plane subscriptions known to be live.
func (e *Execution) phasePrime(attempt int) {
	futures := e.each((*slaveController).resendVars)
	all, err := event.WhenAll(futures)
	if err != nil {
		e.fail(err)
		return
	}
	_ = all.OnCompletion(func(results []event.AnyResult[reply]) error {
		if e.terminating {
			return nil
		}
		var firstErr error
		for _, res := range results {
			if res.Err != nil {
				firstErr = res.Err
				break
			}
		}
		if firstErr == nil {
			e.doStep()
			return nil
		}
		if attempt >= maxPrimeAttempts {
			e.fail(fmt.Errorf("variable exchange could not be established after %d attempts: %w",
				attempt, firstErr))
			return nil
		}
		logrus.Debugf("master: priming attempt %d failed, retrying: %v", attempt, firstErr)
		e.phasePrime(attempt + 1)
		return nil
	}, nil)
}

// doStep performs one step round followed by one accept round, then
// either schedules the next step or terminates cleanly at max time.
func (e *Execution) doStep() {
	// Stop once the remaining interval cannot hold another full step.
	eps := e.stepSize * 1e-6
	if e.currentTime+e.stepSize > e.opts.MaxTime+eps {
		logrus.Debugf("master: reached max time at t=%g", e.currentTime)
		e.terminateAll()
		return
	}
	t, dt := e.currentTime, e.stepSize
	logrus.Debugf("master: step %d at t=%g", e.stepID, t)
	e.round(e.each(func(sc *slaveController) *event.Future[reply] {
		return sc.step(e.stepID, t, dt)
	}), func(results []event.AnyResult[reply]) {
		for i, res := range results {
			if res.Value.responseID == protocol.ResponseStepFailed {
				e.fail(fmt.Errorf("slave %q could not perform the step at t=%g with dt=%g",
					e.slaves[i].name, t, dt))
				return
			}
		}
		e.round(e.each((*slaveController).acceptStep), func([]event.AnyResult[reply]) {
			e.currentTime += e.stepSize
			e.stepID++
			e.doStep()
		})
	})
}

// fail records the first failure and initiates termination of all
// slaves.
func (e *Execution) fail(err error) {
	if e.failure == nil {
		e.failure = err
	}
	logrus.Errorf("master: execution %q failed: %v", e.name, err)
	e.terminateAll()
}

// terminateAll sends TERMINATE to every slave, then shuts the transport
// down so the reactor can run dry.
func (e *Execution) terminateAll() {
	if e.terminating {
		return
	}
	e.terminating = true
	futures := e.each((*slaveController).terminate)
	all, err := event.WhenAll(futures)
	if err != nil {
		e.shutdown()
		return
	}
	_ = all.OnCompletion(func(results []event.AnyResult[reply]) error {
		for i, res := range results {
			if res.Err != nil {
				logrus.Warnf("master: terminating slave %q: %v", e.slaves[i].name, res.Err)
			}
		}
		e.shutdown()
		return nil
	}, nil)
}

func (e *Execution) shutdown() {
	for _, sc := range e.slaves {
		sc.close()
	}
}

// variableSettings collects the initial values and connections that
// concern one slave.
func (e *Execution) variableSettings(sc *slaveController) ([]protocol.VarSetting, error) {
	var settings []protocol.VarSetting
	for qvn, value := range e.model.InitialValues() {
		if qvn.Slave != sc.name {
			continue
		}
		varDesc, ok := sc.typeDesc.VariableByName(qvn.Variable)
		if !ok {
			return nil, fmt.Errorf("%w: unknown variable: %s", ErrEntityNotFound, qvn)
		}
		payload, err := protocol.FromScalarValue(value)
		if err != nil {
			return nil, err
		}
		settings = append(settings, protocol.VarSetting{
			VariableID: varDesc.ID,
			HasValue:   true,
			Value:      payload,
		})
	}
	for _, conn := range e.model.Connections() {
		if conn.Target.Slave != sc.name {
			continue
		}
		targetVar, ok := sc.typeDesc.VariableByName(conn.Target.Variable)
		if !ok {
			return nil, fmt.Errorf("%w: unknown variable: %s", ErrEntityNotFound, conn.Target)
		}
		source := e.slaveByName(conn.Source.Slave)
		if source == nil {
			return nil, fmt.Errorf("%w: unknown slave name: %q", ErrEntityNotFound, conn.Source.Slave)
		}
		sourceVar, ok := source.typeDesc.VariableByName(conn.Source.Variable)
		if !ok {
			return nil, fmt.Errorf("%w: unknown variable: %s", ErrEntityNotFound, conn.Source)
		}
		settings = append(settings, protocol.VarSetting{
			VariableID:     targetVar.ID,
			Connected:      true,
			SourceSlave:    source.id,
			SourceVariable: sourceVar.ID,
		})
	}
	return settings, nil
}

// peerEndpoints returns the data-publish endpoints of the slaves that
// feed inputs of the given slave.
func (e *Execution) peerEndpoints(sc *slaveController) []string {
	seen := make(map[string]bool)
	var endpoints []string
	for _, conn := range e.model.Connections() {
		if conn.Target.Slave != sc.name {
			continue
		}
		source := e.slaveByName(conn.Source.Slave)
		if source == nil || seen[source.dataPubEndpoint] {
			continue
		}
		seen[source.dataPubEndpoint] = true
		endpoints = append(endpoints, source.dataPubEndpoint)
	}
	return endpoints
}

func (e *Execution) slaveByName(name string) *slaveController {
	for _, sc := range e.slaves {
		if sc.name == name {
			return sc
		}
	}
	return nil
}

// failedFuture returns a future that is already failed with the given
// error.
func failedFuture[T any](reactor *event.Reactor, err error) *event.Future[T] {
	p := event.NewPromise[T](reactor)
	f, _ := p.Future()
	_ = p.SetError(err)
	return f
}
