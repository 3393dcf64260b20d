package master

import (
	"errors"
	"fmt"
	"time"

	"github.com/kyllingstad/coral/event"
	"github.com/kyllingstad/coral/model"
	"github.com/kyllingstad/coral/protocol"
	"github.com/kyllingstad/coral/rfsm"
)

// ErrSlaveProtocol marks failures where a slave replied with a
// protocol-level error. The transport to that slave is considered
// tainted.
var ErrSlaveProtocol = errors.New("protocol error reported by slave")

// reply is a successful response from a slave.
type reply struct {
	state      uint16
	responseID string
	data       []byte
}

// slaveController is the master's handle on one slave: an RFSM client
// plus the identity the slave was assigned in this execution. Each
// protocol call returns a future that resolves with the slave's reply or
// fails with a transport or protocol error.
type slaveController struct {
	reactor         *event.Reactor
	name            string
	id              model.SlaveID
	typeDesc        model.SlaveTypeDescription
	dataPubEndpoint string
	client          *rfsm.Master
	commTimeout     time.Duration
}

func newSlaveController(
	reactor *event.Reactor,
	name string,
	id model.SlaveID,
	typeDesc model.SlaveTypeDescription,
	locator SlaveLocator,
	commTimeout time.Duration,
) (*slaveController, error) {
	client, err := rfsm.NewMaster(reactor, locator.Control)
	if err != nil {
		return nil, fmt.Errorf("slave %q: %w", name, err)
	}
	return &slaveController{
		reactor:         reactor,
		name:            name,
		id:              id,
		typeDesc:        typeDesc,
		dataPubEndpoint: locator.DataPub,
		client:          client,
		commTimeout:     commTimeout,
	}, nil
}

// call sends one event and returns a future for the reply. A payload of
// nil sends an empty data frame.
func (sc *slaveController) call(eventID string, payload any) *event.Future[reply] {
	promise := event.NewPromise[reply](sc.reactor)
	future, _ := promise.Future()

	var data []byte
	if payload != nil {
		var err error
		data, err = protocol.Encode(payload)
		if err != nil {
			_ = promise.SetError(err)
			return future
		}
	}
	err := sc.client.SendEvent([]byte(eventID), data, sc.commTimeout,
		func(err error, state uint16, responseID, responseData []byte) {
			if err != nil {
				_ = promise.SetError(fmt.Errorf("slave %q: %s: %w", sc.name, eventID, err))
				return
			}
			if string(responseID) == protocol.ResponseError {
				var ed protocol.ErrorData
				if derr := protocol.Decode(responseData, &ed); derr != nil {
					ed.Message = "unreadable error reply"
				}
				_ = promise.SetError(fmt.Errorf("slave %q: %s: %w: %s",
					sc.name, eventID, ErrSlaveProtocol, ed.Message))
				return
			}
			_ = promise.SetValue(reply{
				state:      state,
				responseID: string(responseID),
				data:       responseData,
			})
		})
	if err != nil {
		_ = promise.SetError(fmt.Errorf("slave %q: %s: %w", sc.name, eventID, err))
	}
	return future
}

func (sc *slaveController) hello() *event.Future[reply] {
	return sc.call(protocol.EventHello, protocol.HelloData{Protocol: protocol.ProtocolVersion})
}

func (sc *slaveController) setup(executionName string, opts ExecutionOptions) *event.Future[reply] {
	return sc.call(protocol.EventSetup, protocol.SetupData{
		SlaveID:               sc.id,
		SlaveName:             sc.name,
		ExecutionName:         executionName,
		StartTime:             opts.StartTime,
		StopTime:              opts.MaxTime,
		AdaptiveStepSize:      false,
		RelativeTolerance:     1.0, // not used with fixed steps
		VariableRecvTimeoutMS: opts.SlaveVariableRecvTimeout.Milliseconds(),
	})
}

func (sc *slaveController) setVars(settings []protocol.VarSetting) *event.Future[reply] {
	return sc.call(protocol.EventSetVars, protocol.SetVarsData{Settings: settings})
}

func (sc *slaveController) setPeers(endpoints []string) *event.Future[reply] {
	return sc.call(protocol.EventSetPeers, protocol.SetPeersData{Endpoints: endpoints})
}

func (sc *slaveController) startSimulation() *event.Future[reply] {
	return sc.call(protocol.EventStartSim, nil)
}

func (sc *slaveController) resendVars() *event.Future[reply] {
	return sc.call(protocol.EventResendVars, nil)
}

func (sc *slaveController) step(stepID model.StepID, t model.TimePoint, dt model.TimeDuration) *event.Future[reply] {
	return sc.call(protocol.EventStep, protocol.StepData{
		StepID:    stepID,
		TimePoint: t,
		StepSize:  dt,
	})
}

func (sc *slaveController) acceptStep() *event.Future[reply] {
	return sc.call(protocol.EventAcceptStep, nil)
}

func (sc *slaveController) terminate() *event.Future[reply] {
	return sc.call(protocol.EventTerminate, nil)
}

func (sc *slaveController) close() {
	_ = sc.client.Close()
}
