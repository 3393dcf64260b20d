package master

import (
	"fmt"
	"time"

	"github.com/kyllingstad/coral/model"
)

// ExecutionOptions configures an execution.
type ExecutionOptions struct {
	// Name is the execution name passed to the slaves. If empty, a
	// unique name is generated.
	Name string

	// StartTime is the start of the simulation. Must be less than
	// MaxTime.
	StartTime model.TimePoint

	// MaxTime is the maximum simulation time point. May be
	// model.Eternity, signifying no predefined maximum.
	MaxTime model.TimePoint

	// CommTimeout bounds every control request to a slave.
	CommTimeout time.Duration

	// SlaveVariableRecvTimeout is used by the slaves to detect loss of
	// communication with other slaves during variable exchange. A
	// negative value means no timeout.
	SlaveVariableRecvTimeout time.Duration
}

// DefaultExecutionOptions returns the options used when nothing else is
// specified: start at zero, no maximum time. The control timeout must
// exceed the variable-exchange timeout, or a slave that is still waiting
// for peer values would be reported as unreachable.
func DefaultExecutionOptions() ExecutionOptions {
	return ExecutionOptions{
		StartTime:                0,
		MaxTime:                  model.Eternity,
		CommTimeout:              5 * time.Second,
		SlaveVariableRecvTimeout: time.Second,
	}
}

// Validate checks the option invariants.
func (o ExecutionOptions) Validate() error {
	if !(o.MaxTime > o.StartTime) {
		return fmt.Errorf("start time (%g) must be less than max time (%g)",
			o.StartTime, o.MaxTime)
	}
	if o.CommTimeout <= 0 {
		return fmt.Errorf("communications timeout must be positive, got %v", o.CommTimeout)
	}
	return nil
}
