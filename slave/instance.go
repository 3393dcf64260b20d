// Package slave contains the slave-process side of the runtime that is
// visible to model implementors: the Instance interface a model must
// satisfy and a CSV-logging decorator. The Runner that connects an
// instance to a master is bus.Runner.
package slave

import "github.com/kyllingstad/coral/model"

// Instance is the interface to the black-box model a slave encapsulates.
//
// The call sequence is:
//
//  1. Setup: configure the slave and enter initialisation mode.
//  2. Get/Set...Variables: variable initialisation, any number of times,
//     in any order.
//  3. StartSimulation: end initialisation mode, start the simulation.
//  4. DoStep and Get/Set...Variables, any number of times, in any order.
//  5. EndSimulation.
//
// Any method may return an error, after which the instance is considered
// broken and no further calls are made.
//
// The Get methods fill the values slice with the values of the variables
// listed in ids, in the same order; both slices must have equal length.
// The Set methods return false (with a nil error) if one or more values
// were rejected as invalid for the given variables, e.g. out of range.
type Instance interface {
	// TypeDescription returns a description of the slave type.
	TypeDescription() (model.SlaveTypeDescription, error)

	// Setup configures the slave for an execution. startTime and
	// stopTime delimit the interval within which DoStep will be called;
	// stopTime may be model.Eternity. relativeTolerance is only
	// meaningful when adaptiveStepSize is true.
	Setup(
		slaveName, executionName string,
		startTime, stopTime model.TimePoint,
		adaptiveStepSize bool,
		relativeTolerance float64,
	) error

	// StartSimulation ends initialisation mode and starts the
	// simulation.
	StartSimulation() error

	// EndSimulation informs the slave that the simulation run has ended.
	EndSimulation() error

	// DoStep performs the model calculations for the time step that
	// starts at currentT and lasts deltaT. It returns false if the
	// calculations could not be carried out because the step was too
	// long.
	DoStep(currentT model.TimePoint, deltaT model.TimeDuration) (bool, error)

	GetRealVariables(ids []model.VariableID, values []float64) error
	GetIntegerVariables(ids []model.VariableID, values []int32) error
	GetBooleanVariables(ids []model.VariableID, values []bool) error
	GetStringVariables(ids []model.VariableID, values []string) error

	SetRealVariables(ids []model.VariableID, values []float64) (bool, error)
	SetIntegerVariables(ids []model.VariableID, values []int32) (bool, error)
	SetBooleanVariables(ids []model.VariableID, values []bool) (bool, error)
	SetStringVariables(ids []model.VariableID, values []string) (bool, error)
}
