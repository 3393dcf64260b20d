package master

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kyllingstad/coral/model"
)

func qvn(t *testing.T, s string) model.QualifiedVariableName {
	t.Helper()
	q, err := model.ParseQualifiedVariableName(s)
	require.NoError(t, err)
	return q
}

func widgetType() model.SlaveTypeDescription {
	return model.SlaveTypeDescription{
		Name: "widget",
		UUID: "2b7e1516-28ae-d2a6-abf7-158809cf4f3c",
		Variables: []model.VariableDescription{
			{ID: 0, Name: "a", DataType: model.RealDataType, Causality: model.OutputCausality, Variability: model.ContinuousVariability},
			{ID: 1, Name: "c", DataType: model.StringDataType, Causality: model.OutputCausality, Variability: model.DiscreteVariability},
		},
	}
}

func gadgetType() model.SlaveTypeDescription {
	return model.SlaveTypeDescription{
		Name: "gadget",
		UUID: "3243f6a8-885a-308d-3131-98a2e0370734",
		Variables: []model.VariableDescription{
			{ID: 0, Name: "x", DataType: model.RealDataType, Causality: model.InputCausality, Variability: model.ContinuousVariability},
			{ID: 1, Name: "y", DataType: model.RealDataType, Causality: model.InputCausality, Variability: model.ContinuousVariability},
			{ID: 2, Name: "z", DataType: model.StringDataType, Causality: model.InputCausality, Variability: model.DiscreteVariability},
		},
	}
}

func TestModelBuilder_TypingAndConnections(t *testing.T) {
	b := NewModelBuilder()
	require.NoError(t, b.AddSlave("widget", widgetType()))
	require.NoError(t, b.AddSlave("gadget", gadgetType()))

	// Assigning a string to a real variable is a construction error.
	err := b.SetInitialValue(qvn(t, "gadget.x"), "foo")
	require.ErrorIs(t, err, ErrModelConstruction)

	// A matching assignment is fine and can be read back.
	require.NoError(t, b.SetInitialValue(qvn(t, "gadget.x"), 2.0))
	value, err := b.GetInitialValue(qvn(t, "gadget.x"))
	require.NoError(t, err)
	require.Equal(t, 2.0, value)

	// Real output to real input connects fine.
	require.NoError(t, b.Connect(qvn(t, "widget.a"), qvn(t, "gadget.x")))

	// Unknown slave.
	err = b.Connect(qvn(t, "widget.a"), qvn(t, "slaveE.x"))
	require.ErrorIs(t, err, ErrEntityNotFound)

	// String output to real input is a type mismatch.
	err = b.Connect(qvn(t, "widget.c"), qvn(t, "gadget.y"))
	require.ErrorIs(t, err, ErrModelConstruction)

	conns := b.GetConnections()
	require.Len(t, conns, 1)
	require.Equal(t, qvn(t, "widget.a"), conns[0].Source)
	require.Equal(t, qvn(t, "gadget.x"), conns[0].Target)

	unconnected := b.GetUnconnectedInputs()
	require.Equal(t, []model.QualifiedVariableName{
		qvn(t, "gadget.y"),
		qvn(t, "gadget.z"),
	}, unconnected)
}

func TestModelBuilder_UnconnectedInputsAndConnectionsAreConsistent(t *testing.T) {
	b := NewModelBuilder()
	require.NoError(t, b.AddSlave("widget", widgetType()))
	require.NoError(t, b.AddSlave("gadget", gadgetType()))
	require.NoError(t, b.Connect(qvn(t, "widget.a"), qvn(t, "gadget.y")))

	connected := make(map[model.QualifiedVariableName]bool)
	for _, c := range b.GetConnections() {
		connected[c.Target] = true

		// Every connection satisfies the causality and data type rules.
		sourceType := widgetType()
		sv, ok := sourceType.VariableByName(c.Source.Variable)
		require.True(t, ok)
		require.Contains(t,
			[]model.Causality{model.OutputCausality, model.CalculatedParameterCausality},
			sv.Causality)
		targetType := gadgetType()
		tv, ok := targetType.VariableByName(c.Target.Variable)
		require.True(t, ok)
		require.Contains(t,
			[]model.Causality{model.InputCausality, model.ParameterCausality},
			tv.Causality)
		require.Equal(t, sv.DataType, tv.DataType)
	}
	for _, u := range b.GetUnconnectedInputs() {
		require.False(t, connected[u], "unconnected input %s is also a connection target", u)
		gadget := gadgetType()
		v, ok := gadget.VariableByName(u.Variable)
		require.True(t, ok)
		require.Equal(t, model.InputCausality, v.Causality)
	}
}

func TestModelBuilder_SlaveValidation(t *testing.T) {
	b := NewModelBuilder()
	require.Error(t, b.AddSlave("1bad", widgetType()))
	require.Error(t, b.AddSlave("", widgetType()))

	require.NoError(t, b.AddSlave("widget", widgetType()))
	err := b.AddSlave("widget", gadgetType())
	require.ErrorIs(t, err, ErrModelConstruction)
}

func TestModelBuilder_ConnectionRules(t *testing.T) {
	b := NewModelBuilder()
	require.NoError(t, b.AddSlave("w", widgetType()))
	require.NoError(t, b.AddSlave("g", gadgetType()))

	// Inputs cannot be sources.
	err := b.Connect(qvn(t, "g.x"), qvn(t, "g.y"))
	require.ErrorIs(t, err, ErrModelConstruction)

	// A target can only have one source.
	require.NoError(t, b.Connect(qvn(t, "w.a"), qvn(t, "g.x")))
	err = b.Connect(qvn(t, "w.a"), qvn(t, "g.x"))
	require.ErrorIs(t, err, ErrModelConstruction)

	// The same source may feed several targets.
	require.NoError(t, b.Connect(qvn(t, "w.a"), qvn(t, "g.y")))
}

func TestModelBuilder_InitialValueLifecycle(t *testing.T) {
	b := NewModelBuilder()
	require.NoError(t, b.AddSlave("g", gadgetType()))

	// Unknown variables are reported as missing entities.
	err := b.SetInitialValue(qvn(t, "g.nope"), 1.0)
	require.ErrorIs(t, err, ErrEntityNotFound)
	err = b.SetInitialValue(qvn(t, "nope.x"), 1.0)
	require.ErrorIs(t, err, ErrEntityNotFound)

	// No value set: there is no fallback to declared defaults.
	_, err = b.GetInitialValue(qvn(t, "g.x"))
	require.ErrorIs(t, err, ErrEntityNotFound)

	// Assignment replaces any previous value; reset removes it.
	require.NoError(t, b.SetInitialValue(qvn(t, "g.x"), 1.0))
	require.NoError(t, b.SetInitialValue(qvn(t, "g.x"), 2.0))
	value, err := b.GetInitialValue(qvn(t, "g.x"))
	require.NoError(t, err)
	require.Equal(t, 2.0, value)
	b.ResetInitialValue(qvn(t, "g.x"))
	_, err = b.GetInitialValue(qvn(t, "g.x"))
	require.ErrorIs(t, err, ErrEntityNotFound)
}

func TestModelBuilder_BuildFreezesTheGraph(t *testing.T) {
	b := NewModelBuilder()
	require.NoError(t, b.AddSlave("w", widgetType()))
	require.NoError(t, b.AddSlave("g", gadgetType()))
	require.NoError(t, b.Connect(qvn(t, "w.a"), qvn(t, "g.x")))
	require.NoError(t, b.SetInitialValue(qvn(t, "g.y"), 3.5))

	m := b.Build()

	// Later mutations do not leak into the frozen model.
	require.NoError(t, b.Connect(qvn(t, "w.a"), qvn(t, "g.y")))
	b.ResetInitialValue(qvn(t, "g.y"))

	require.Equal(t, []string{"g", "w"}, m.SlaveNames())
	require.Len(t, m.Connections(), 1)
	require.Equal(t, map[model.QualifiedVariableName]model.ScalarValue{
		qvn(t, "g.y"): 3.5,
	}, m.InitialValues())
}
