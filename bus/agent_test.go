package bus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kyllingstad/coral/event"
	"github.com/kyllingstad/coral/model"
	"github.com/kyllingstad/coral/protocol"
	"github.com/kyllingstad/coral/rfsm"
)

// constInstance has a single real output and no inputs; the output holds
// whatever was last set on it.
type constInstance struct {
	out     float64
	started bool
	ended   bool
	steps   int
}

func constTypeDescription() model.SlaveTypeDescription {
	return model.SlaveTypeDescription{
		Name:    "const",
		UUID:    "82efa8ec-4bce-7c61-7357-3eb166f92e36",
		Version: "1.0",
		Variables: []model.VariableDescription{
			{ID: 0, Name: "out", DataType: model.RealDataType, Causality: model.OutputCausality, Variability: model.ContinuousVariability},
		},
	}
}

func (ci *constInstance) TypeDescription() (model.SlaveTypeDescription, error) {
	return constTypeDescription(), nil
}

func (ci *constInstance) Setup(string, string, model.TimePoint, model.TimePoint, bool, float64) error {
	return nil
}

func (ci *constInstance) StartSimulation() error { ci.started = true; return nil }
func (ci *constInstance) EndSimulation() error   { ci.ended = true; return nil }

func (ci *constInstance) DoStep(model.TimePoint, model.TimeDuration) (bool, error) {
	ci.steps++
	return true, nil
}

func (ci *constInstance) GetRealVariables(ids []model.VariableID, values []float64) error {
	for i, id := range ids {
		if id != 0 {
			return fmt.Errorf("unknown variable ID %d", id)
		}
		values[i] = ci.out
	}
	return nil
}

func (ci *constInstance) GetIntegerVariables([]model.VariableID, []int32) error {
	return fmt.Errorf("no integer variables")
}
func (ci *constInstance) GetBooleanVariables([]model.VariableID, []bool) error {
	return fmt.Errorf("no boolean variables")
}
func (ci *constInstance) GetStringVariables([]model.VariableID, []string) error {
	return fmt.Errorf("no string variables")
}

func (ci *constInstance) SetRealVariables(ids []model.VariableID, values []float64) (bool, error) {
	for i, id := range ids {
		if id != 0 {
			return false, fmt.Errorf("unknown variable ID %d", id)
		}
		ci.out = values[i]
	}
	return true, nil
}

func (ci *constInstance) SetIntegerVariables([]model.VariableID, []int32) (bool, error) {
	return false, fmt.Errorf("no integer variables")
}
func (ci *constInstance) SetBooleanVariables([]model.VariableID, []bool) (bool, error) {
	return false, fmt.Errorf("no boolean variables")
}
func (ci *constInstance) SetStringVariables([]model.VariableID, []string) (bool, error) {
	return false, fmt.Errorf("no string variables")
}

// scriptStep sends one event and checks the reply before the next step
// runs.
type scriptStep struct {
	event   string
	payload any
	check   func(t *testing.T, state uint16, responseID string, data []byte)
}

func runScript(t *testing.T, reactor *event.Reactor, client *rfsm.Master, steps []scriptStep) int {
	t.Helper()
	completed := 0
	var run func(i int)
	run = func(i int) {
		if i >= len(steps) {
			return
		}
		s := steps[i]
		var data []byte
		if s.payload != nil {
			var err error
			data, err = protocol.Encode(s.payload)
			require.NoError(t, err)
		}
		err := client.SendEvent([]byte(s.event), data, 5*time.Second,
			func(err error, state uint16, responseID, responseData []byte) {
				require.NoError(t, err, "step %d (%s)", i, s.event)
				if s.check != nil {
					s.check(t, state, string(responseID), responseData)
				}
				completed++
				run(i + 1)
			})
		require.NoError(t, err)
	}
	run(0)
	require.NoError(t, reactor.Run())
	return completed
}

func TestAgent_LifecycleStateMachine(t *testing.T) {
	reactor := event.NewReactor()
	inst := &constInstance{out: 7}
	agent, err := NewAgent(reactor, inst, "inproc://agent-life-control", "inproc://agent-life-data", 0)
	require.NoError(t, err)
	client, err := rfsm.NewMaster(reactor, agent.BoundControlEndpoint())
	require.NoError(t, err)

	expect := func(wantState uint16, wantID string) func(*testing.T, uint16, string, []byte) {
		return func(t *testing.T, state uint16, responseID string, _ []byte) {
			require.Equal(t, wantState, state)
			require.Equal(t, wantID, responseID)
		}
	}

	steps := []scriptStep{
		// A master that requires an unsupported protocol version is
		// rejected, and the handshake can still happen afterwards.
		{
			event:   protocol.EventHello,
			payload: protocol.HelloData{Protocol: 99},
			check: func(t *testing.T, state uint16, responseID string, _ []byte) {
				require.Equal(t, protocol.StateIndeterminate, state)
				require.Equal(t, protocol.ResponseError, responseID)
			},
		},
		{
			event:   protocol.EventHello,
			payload: protocol.HelloData{Protocol: protocol.ProtocolVersion},
			check:   expect(protocol.StateConnecting, protocol.ResponseHello),
		},
		{
			event: protocol.EventSetup,
			payload: protocol.SetupData{
				SlaveID: 1, SlaveName: "c1", ExecutionName: "test",
				StartTime: 0, StopTime: 1, VariableRecvTimeoutMS: 1000,
			},
			check: expect(protocol.StateInit, protocol.ResponseOK),
		},
		{
			event:   protocol.EventDescribe,
			payload: nil,
			check: func(t *testing.T, state uint16, responseID string, data []byte) {
				require.Equal(t, protocol.StateInit, state)
				require.Equal(t, protocol.ResponseDescription, responseID)
				var d protocol.DescriptionData
				require.NoError(t, protocol.Decode(data, &d))
				require.Equal(t, constTypeDescription(), d.ToTypeDescription())
			},
		},
		{
			event: protocol.EventSetVars,
			payload: protocol.SetVarsData{Settings: []protocol.VarSetting{{
				VariableID: 0,
				HasValue:   true,
				Value:      protocol.ScalarPayload{Kind: uint8(model.RealDataType), Real: 5},
			}}},
			check: expect(protocol.StateInit, protocol.ResponseOK),
		},
		{
			event:   protocol.EventGetVars,
			payload: protocol.GetVarsData{VariableIDs: []uint32{0}},
			check: func(t *testing.T, state uint16, responseID string, data []byte) {
				require.Equal(t, protocol.ResponseValues, responseID)
				var values protocol.VarValuesData
				require.NoError(t, protocol.Decode(data, &values))
				require.Len(t, values.Values, 1)
				require.Equal(t, 5.0, values.Values[0].Real)
			},
		},
		// A STEP before START_SIM is a protocol error and must not
		// change the state.
		{
			event:   protocol.EventStep,
			payload: protocol.StepData{StepID: 0, TimePoint: 0, StepSize: 0.1},
			check: func(t *testing.T, state uint16, responseID string, _ []byte) {
				require.Equal(t, protocol.StateInit, state)
				require.Equal(t, protocol.ResponseError, responseID)
			},
		},
		{
			event:   protocol.EventStartSim,
			payload: nil,
			check:   expect(protocol.StateReady, protocol.ResponseOK),
		},
		{
			event:   protocol.EventStep,
			payload: protocol.StepData{StepID: 0, TimePoint: 0, StepSize: 0.1},
			check:   expect(protocol.StatePublished, protocol.ResponseStepOK),
		},
		// The time advances only once the master accepts the step.
		{
			event:   protocol.EventAcceptStep,
			payload: nil,
			check: func(t *testing.T, state uint16, responseID string, _ []byte) {
				require.Equal(t, protocol.StateReady, state)
				require.InDelta(t, 0.1, agent.CurrentTime(), 1e-9)
			},
		},
		// Stop driving the agent here; termination is exercised by the
		// controller tests. Close our side so the reactor runs dry.
		{
			event:   protocol.EventGetVars,
			payload: protocol.GetVarsData{VariableIDs: []uint32{0}},
			check: func(t *testing.T, state uint16, responseID string, _ []byte) {
				// GET_VARS outside INIT is rejected.
				require.Equal(t, protocol.ResponseError, responseID)
				require.Equal(t, protocol.StateReady, state)
				require.NoError(t, client.Close())
				require.NoError(t, agent.control.Close())
				agent.publisher.Close()
				agent.subscriber.Close()
			},
		},
	}
	completed := runScript(t, reactor, client, steps)
	require.Equal(t, len(steps), completed)
	require.True(t, inst.started)
	require.Equal(t, 1, inst.steps)
}

func TestAgent_WildcardEndpointsResolve(t *testing.T) {
	reactor := event.NewReactor()
	agent, err := NewAgent(reactor, &constInstance{}, "tcp://127.0.0.1:*", "tcp://127.0.0.1:*", 0)
	require.NoError(t, err)
	defer func() {
		_ = agent.control.Close()
		agent.publisher.Close()
		agent.subscriber.Close()
	}()
	require.NotContains(t, agent.BoundControlEndpoint(), "*")
	require.NotContains(t, agent.BoundDataPubEndpoint(), "*")
	require.NotEqual(t, agent.BoundControlEndpoint(), agent.BoundDataPubEndpoint())
}
