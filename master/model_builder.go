package master

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kyllingstad/coral/model"
)

// Error kinds reported by the model builder. Failures leave the builder
// usable; the offending mutation simply does not happen.
var (
	ErrModelConstruction = errors.New("model construction error")
	ErrEntityNotFound    = errors.New("entity not found")
)

// Connection is one directed variable connection in the model.
type Connection struct {
	Source model.QualifiedVariableName
	Target model.QualifiedVariableName
}

// cachedSlaveType interns one slave type and indexes its variables by
// name.
type cachedSlaveType struct {
	description model.SlaveTypeDescription
	variables   map[string]model.VariableDescription
}

func newCachedSlaveType(td model.SlaveTypeDescription) *cachedSlaveType {
	c := &cachedSlaveType{
		description: td,
		variables:   make(map[string]model.VariableDescription, len(td.Variables)),
	}
	for _, v := range td.Variables {
		c.variables[v.Name] = v
	}
	return c
}

// ModelBuilder validates a simulation graph as it is assembled: slaves
// added by name and type, variable connections checked for causality and
// data type compatibility, initial values type-checked. Build freezes
// the result into a Model for the execution controller.
type ModelBuilder struct {
	slaveTypes    map[string]*cachedSlaveType // interned by UUID
	slaves        map[string]*cachedSlaveType // by slave name
	initialValues map[model.QualifiedVariableName]model.ScalarValue
	connections   map[model.QualifiedVariableName]model.QualifiedVariableName // target -> source
}

// NewModelBuilder creates an empty builder.
func NewModelBuilder() *ModelBuilder {
	return &ModelBuilder{
		slaveTypes:    make(map[string]*cachedSlaveType),
		slaves:        make(map[string]*cachedSlaveType),
		initialValues: make(map[model.QualifiedVariableName]model.ScalarValue),
		connections:   make(map[model.QualifiedVariableName]model.QualifiedVariableName),
	}
}

// AddSlave adds a slave with the given name and type. The name must be a
// valid identifier and must not be in use.
func (b *ModelBuilder) AddSlave(name string, td model.SlaveTypeDescription) error {
	if !model.IsValidSlaveName(name) {
		return fmt.Errorf("not a valid slave name: %q", name)
	}
	if _, exists := b.slaves[name]; exists {
		return fmt.Errorf("%w: slave name already in use: %q", ErrModelConstruction, name)
	}
	cached, ok := b.slaveTypes[td.UUID]
	if !ok {
		cached = newCachedSlaveType(td)
		b.slaveTypes[td.UUID] = cached
	}
	b.slaves[name] = cached
	return nil
}

// SetInitialValue assigns an initial value to a variable, replacing any
// previous one. The value's type must match the variable's declared
// data type.
func (b *ModelBuilder) SetInitialValue(variable model.QualifiedVariableName, value model.ScalarValue) error {
	varDesc, err := b.variableDescription(variable)
	if err != nil {
		return err
	}
	valueType, ok := model.DataTypeOf(value)
	if !ok {
		return fmt.Errorf("unsupported value of type %T for variable %s", value, variable)
	}
	if valueType != varDesc.DataType {
		return fmt.Errorf(
			"%w: attempted to assign a value of type %s to variable %s which has type %s",
			ErrModelConstruction, valueType, variable, varDesc.DataType)
	}
	b.initialValues[variable] = value
	return nil
}

// GetInitialValue returns the initial value previously set for a
// variable. If none has been set, it fails with ErrEntityNotFound; there
// is no fallback to declared defaults.
func (b *ModelBuilder) GetInitialValue(variable model.QualifiedVariableName) (model.ScalarValue, error) {
	value, ok := b.initialValues[variable]
	if !ok {
		return nil, fmt.Errorf("%w: no initial value set for variable %s",
			ErrEntityNotFound, variable)
	}
	return value, nil
}

// ResetInitialValue removes the initial value set for a variable, if
// any.
func (b *ModelBuilder) ResetInitialValue(variable model.QualifiedVariableName) {
	delete(b.initialValues, variable)
}

// Connect connects a source variable to a target variable. The source
// must be an output or calculated parameter, the target an input (or a
// parameter, for calculated-parameter sources), the data types must be
// equal, and the target must not already be connected.
func (b *ModelBuilder) Connect(source, target model.QualifiedVariableName) error {
	sourceVar, err := b.variableDescription(source)
	if err != nil {
		return err
	}
	targetVar, err := b.variableDescription(target)
	if err != nil {
		return err
	}
	if err := checkConnection(source, sourceVar, target, targetVar); err != nil {
		return err
	}
	if _, connected := b.connections[target]; connected {
		return fmt.Errorf("%w: variable already connected: %s", ErrModelConstruction, target)
	}
	b.connections[target] = source
	return nil
}

func checkConnection(
	source model.QualifiedVariableName, sourceVar model.VariableDescription,
	target model.QualifiedVariableName, targetVar model.VariableDescription,
) error {
	connErr := func(details string) error {
		return fmt.Errorf("%w: cannot connect variable %s to %s: %s",
			ErrModelConstruction, source, target, details)
	}
	switch sourceVar.Causality {
	case model.OutputCausality:
		if targetVar.Causality != model.InputCausality {
			return connErr("an output variable may only be connected to an input variable")
		}
	case model.CalculatedParameterCausality:
		if targetVar.Causality != model.ParameterCausality &&
			targetVar.Causality != model.InputCausality {
			return connErr("a calculated parameter may only be connected to a parameter or input variable")
		}
	default:
		return connErr("only output variables and calculated parameters may be used as sources in a connection")
	}
	if sourceVar.DataType != targetVar.DataType {
		return connErr(fmt.Sprintf("a variable of type %s cannot be connected to a variable of type %s",
			sourceVar.DataType, targetVar.DataType))
	}
	return nil
}

// GetConnections returns all connections, ordered by target name.
func (b *ModelBuilder) GetConnections() []Connection {
	conns := make([]Connection, 0, len(b.connections))
	for target, source := range b.connections {
		conns = append(conns, Connection{Source: source, Target: target})
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].Target.String() < conns[j].Target.String()
	})
	return conns
}

// GetUnconnectedInputs returns every declared input variable of every
// added slave that is not the target of any connection, ordered by name.
func (b *ModelBuilder) GetUnconnectedInputs() []model.QualifiedVariableName {
	var unconnected []model.QualifiedVariableName
	for slaveName, slaveType := range b.slaves {
		for _, v := range slaveType.description.Variables {
			if v.Causality != model.InputCausality {
				continue
			}
			qvn := model.QualifiedVariableName{Slave: slaveName, Variable: v.Name}
			if _, connected := b.connections[qvn]; !connected {
				unconnected = append(unconnected, qvn)
			}
		}
	}
	sort.Slice(unconnected, func(i, j int) bool {
		return unconnected[i].String() < unconnected[j].String()
	})
	return unconnected
}

// Build freezes the current graph into an immutable Model. The builder
// remains usable afterwards; later mutations do not affect the returned
// model.
func (b *ModelBuilder) Build() *Model {
	m := &Model{
		slaves:        make(map[string]model.SlaveTypeDescription, len(b.slaves)),
		initialValues: make(map[model.QualifiedVariableName]model.ScalarValue, len(b.initialValues)),
		connections:   b.GetConnections(),
	}
	for name, cached := range b.slaves {
		m.slaves[name] = cached.description
	}
	for qvn, value := range b.initialValues {
		m.initialValues[qvn] = value
	}
	return m
}

func (b *ModelBuilder) variableDescription(variable model.QualifiedVariableName) (model.VariableDescription, error) {
	slaveType, ok := b.slaves[variable.Slave]
	if !ok {
		return model.VariableDescription{}, fmt.Errorf("%w: unknown slave name: %q",
			ErrEntityNotFound, variable.Slave)
	}
	varDesc, ok := slaveType.variables[variable.Variable]
	if !ok {
		return model.VariableDescription{}, fmt.Errorf("%w: unknown variable: %s",
			ErrEntityNotFound, variable)
	}
	return varDesc, nil
}

// Model is the frozen output of a ModelBuilder, consumed by the
// execution controller. It is read-only.
type Model struct {
	slaves        map[string]model.SlaveTypeDescription
	initialValues map[model.QualifiedVariableName]model.ScalarValue
	connections   []Connection
}

// SlaveNames returns the names of all slaves, sorted.
func (m *Model) SlaveNames() []string {
	names := make([]string, 0, len(m.slaves))
	for name := range m.slaves {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SlaveType returns the type description of a named slave.
func (m *Model) SlaveType(name string) (model.SlaveTypeDescription, bool) {
	td, ok := m.slaves[name]
	return td, ok
}

// InitialValues returns all initial values, keyed by variable name.
func (m *Model) InitialValues() map[model.QualifiedVariableName]model.ScalarValue {
	values := make(map[model.QualifiedVariableName]model.ScalarValue, len(m.initialValues))
	for qvn, v := range m.initialValues {
		values[qvn] = v
	}
	return values
}

// Connections returns all connections, ordered by target name.
func (m *Model) Connections() []Connection {
	conns := make([]Connection, len(m.connections))
	copy(conns, m.connections)
	return conns
}
