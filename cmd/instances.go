package cmd

import (
	"fmt"
	"math"
	"sort"

	"github.com/kyllingstad/coral/model"
	"github.com/kyllingstad/coral/slave"
)

// mathInstance is a demo slave instance built from a type description, a
// bank of real-valued variables and a step function. It covers the
// built-in models exposed by the `slave` command; real deployments wrap
// native simulators instead.
type mathInstance struct {
	td    model.SlaveTypeDescription
	reals map[model.VariableID]float64
	step  func(reals map[model.VariableID]float64, t, dt model.TimePoint)
}

// demoModels constructs the built-in demo instances by name.
var demoModels = map[string]func() *mathInstance{
	"sine": newSineInstance,
	"gain": newGainInstance,
}

// DemoModelNames returns the names of the built-in demo models.
func DemoModelNames() []string {
	names := make([]string, 0, len(demoModels))
	for name := range demoModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDemoInstance creates a built-in demo instance by model name.
func NewDemoInstance(name string) (slave.Instance, error) {
	build, ok := demoModels[name]
	if !ok {
		return nil, fmt.Errorf("unknown demo model %q (available: %v)", name, DemoModelNames())
	}
	return build(), nil
}

// newSineInstance models y = amplitude * sin(2π * frequency * t).
func newSineInstance() *mathInstance {
	const (
		varAmplitude = 0
		varFrequency = 1
		varY         = 2
	)
	return &mathInstance{
		td: model.SlaveTypeDescription{
			Name:        "sine",
			UUID:        "9216d5d9-8979-fb1b-d131-0ba698dfb5ac",
			Description: "sine wave generator",
			Author:      "coral",
			Version:     "1.0",
			Variables: []model.VariableDescription{
				{ID: varAmplitude, Name: "amplitude", DataType: model.RealDataType, Causality: model.ParameterCausality, Variability: model.FixedVariability},
				{ID: varFrequency, Name: "frequency", DataType: model.RealDataType, Causality: model.ParameterCausality, Variability: model.FixedVariability},
				{ID: varY, Name: "y", DataType: model.RealDataType, Causality: model.OutputCausality, Variability: model.ContinuousVariability},
			},
		},
		reals: map[model.VariableID]float64{varAmplitude: 1, varFrequency: 1},
		step: func(reals map[model.VariableID]float64, t, dt model.TimePoint) {
			reals[varY] = reals[varAmplitude] * math.Sin(2*math.Pi*reals[varFrequency]*(t+dt))
		},
	}
}

// newGainInstance models y = k * u.
func newGainInstance() *mathInstance {
	const (
		varK = 0
		varU = 1
		varY = 2
	)
	return &mathInstance{
		td: model.SlaveTypeDescription{
			Name:        "gain",
			UUID:        "2ffd72db-d01a-dfb7-b8e1-afed6a267e96",
			Description: "proportional gain",
			Author:      "coral",
			Version:     "1.0",
			Variables: []model.VariableDescription{
				{ID: varK, Name: "k", DataType: model.RealDataType, Causality: model.ParameterCausality, Variability: model.FixedVariability},
				{ID: varU, Name: "u", DataType: model.RealDataType, Causality: model.InputCausality, Variability: model.ContinuousVariability},
				{ID: varY, Name: "y", DataType: model.RealDataType, Causality: model.OutputCausality, Variability: model.ContinuousVariability},
			},
		},
		reals: map[model.VariableID]float64{varK: 1},
		step: func(reals map[model.VariableID]float64, t, dt model.TimePoint) {
			reals[varY] = reals[varK] * reals[varU]
		},
	}
}

func (mi *mathInstance) TypeDescription() (model.SlaveTypeDescription, error) {
	return mi.td, nil
}

func (mi *mathInstance) Setup(
	slaveName, executionName string,
	startTime, stopTime model.TimePoint,
	adaptiveStepSize bool,
	relativeTolerance float64,
) error {
	return nil
}

func (mi *mathInstance) StartSimulation() error { return nil }
func (mi *mathInstance) EndSimulation() error   { return nil }

func (mi *mathInstance) DoStep(currentT model.TimePoint, deltaT model.TimeDuration) (bool, error) {
	mi.step(mi.reals, currentT, deltaT)
	return true, nil
}

func (mi *mathInstance) GetRealVariables(ids []model.VariableID, values []float64) error {
	if len(ids) != len(values) {
		return fmt.Errorf("got %d ids but %d values", len(ids), len(values))
	}
	for i, id := range ids {
		v, ok := mi.reals[id]
		if !ok {
			if _, declared := mi.td.Variable(id); !declared {
				return fmt.Errorf("unknown variable ID %d", id)
			}
		}
		values[i] = v
	}
	return nil
}

func (mi *mathInstance) SetRealVariables(ids []model.VariableID, values []float64) (bool, error) {
	if len(ids) != len(values) {
		return false, fmt.Errorf("got %d ids but %d values", len(ids), len(values))
	}
	for i, id := range ids {
		if _, declared := mi.td.Variable(id); !declared {
			return false, fmt.Errorf("unknown variable ID %d", id)
		}
		mi.reals[id] = values[i]
	}
	return true, nil
}

func (mi *mathInstance) GetIntegerVariables([]model.VariableID, []int32) error {
	return fmt.Errorf("demo models have no integer variables")
}
func (mi *mathInstance) GetBooleanVariables([]model.VariableID, []bool) error {
	return fmt.Errorf("demo models have no boolean variables")
}
func (mi *mathInstance) GetStringVariables([]model.VariableID, []string) error {
	return fmt.Errorf("demo models have no string variables")
}
func (mi *mathInstance) SetIntegerVariables([]model.VariableID, []int32) (bool, error) {
	return false, fmt.Errorf("demo models have no integer variables")
}
func (mi *mathInstance) SetBooleanVariables([]model.VariableID, []bool) (bool, error) {
	return false, fmt.Errorf("demo models have no boolean variables")
}
func (mi *mathInstance) SetStringVariables([]model.VariableID, []string) (bool, error) {
	return false, fmt.Errorf("demo models have no string variables")
}
