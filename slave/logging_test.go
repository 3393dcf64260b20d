package slave

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kyllingstad/coral/model"
)

// rampInstance outputs its step count.
type rampInstance struct {
	count float64
}

func (ri *rampInstance) TypeDescription() (model.SlaveTypeDescription, error) {
	return model.SlaveTypeDescription{
		Name: "ramp",
		UUID: "d1310ba6-98df-b5ac-2ffd-72dbd01adfb7",
		Variables: []model.VariableDescription{
			{ID: 0, Name: "count", DataType: model.RealDataType, Causality: model.OutputCausality, Variability: model.ContinuousVariability},
		},
	}, nil
}

func (ri *rampInstance) Setup(string, string, model.TimePoint, model.TimePoint, bool, float64) error {
	return nil
}
func (ri *rampInstance) StartSimulation() error { return nil }
func (ri *rampInstance) EndSimulation() error   { return nil }

func (ri *rampInstance) DoStep(model.TimePoint, model.TimeDuration) (bool, error) {
	ri.count++
	return true, nil
}

func (ri *rampInstance) GetRealVariables(ids []model.VariableID, values []float64) error {
	for i := range ids {
		values[i] = ri.count
	}
	return nil
}
func (ri *rampInstance) GetIntegerVariables([]model.VariableID, []int32) error {
	return fmt.Errorf("no integer variables")
}
func (ri *rampInstance) GetBooleanVariables([]model.VariableID, []bool) error {
	return fmt.Errorf("no boolean variables")
}
func (ri *rampInstance) GetStringVariables([]model.VariableID, []string) error {
	return fmt.Errorf("no string variables")
}
func (ri *rampInstance) SetRealVariables([]model.VariableID, []float64) (bool, error) {
	// count is read only; rejecting a value is not an instance failure
	return false, nil
}
func (ri *rampInstance) SetIntegerVariables([]model.VariableID, []int32) (bool, error) {
	return false, fmt.Errorf("no integer variables")
}
func (ri *rampInstance) SetBooleanVariables([]model.VariableID, []bool) (bool, error) {
	return false, fmt.Errorf("no boolean variables")
}
func (ri *rampInstance) SetStringVariables([]model.VariableID, []string) (bool, error) {
	return false, fmt.Errorf("no string variables")
}

func TestLoggingInstance_WritesOneRowPerCompletedStep(t *testing.T) {
	dir := t.TempDir()
	li := NewLoggingInstance(&rampInstance{}, dir, "run1_")

	require.NoError(t, li.Setup("ramp1", "exec", 0, 1, false, 1))
	require.NoError(t, li.StartSimulation())

	ok, err := li.DoStep(0, 0.5)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = li.DoStep(0.5, 0.5)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, li.EndSimulation())

	f, err := os.Open(filepath.Join(dir, "run1_ramp1.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Equal(t, [][]string{
		{"Time", "count"},
		{"0", "0"},
		{"0.5", "1"},
		{"1", "2"},
	}, rows)
}

func TestGetSetVariableSelectTypedAccessors(t *testing.T) {
	ri := &rampInstance{count: 3}
	td, err := ri.TypeDescription()
	require.NoError(t, err)

	v, ok := td.Variable(0)
	require.True(t, ok)
	value, err := GetVariable(ri, v)
	require.NoError(t, err)
	require.Equal(t, 3.0, value)

	// The setter refuses the read-only variable; that surfaces as
	// "invalid value", not as a broken instance.
	okSet, err := SetVariable(ri, 0, 1.5)
	require.NoError(t, err)
	require.False(t, okSet)

	_, err = SetVariable(ri, 0, struct{}{})
	require.Error(t, err)
}
