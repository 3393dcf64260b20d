package slave

import (
	"fmt"

	"github.com/kyllingstad/coral/model"
)

// GetVariable reads a single variable from an instance, selecting the
// typed getter from the variable's declared data type.
func GetVariable(inst Instance, v model.VariableDescription) (model.ScalarValue, error) {
	ids := []model.VariableID{v.ID}
	switch v.DataType {
	case model.RealDataType:
		values := make([]float64, 1)
		if err := inst.GetRealVariables(ids, values); err != nil {
			return nil, err
		}
		return values[0], nil
	case model.IntegerDataType:
		values := make([]int32, 1)
		if err := inst.GetIntegerVariables(ids, values); err != nil {
			return nil, err
		}
		return values[0], nil
	case model.BooleanDataType:
		values := make([]bool, 1)
		if err := inst.GetBooleanVariables(ids, values); err != nil {
			return nil, err
		}
		return values[0], nil
	case model.StringDataType:
		values := make([]string, 1)
		if err := inst.GetStringVariables(ids, values); err != nil {
			return nil, err
		}
		return values[0], nil
	}
	return nil, fmt.Errorf("variable %q has unknown data type %d", v.Name, v.DataType)
}

// SetVariable writes a single variable on an instance, selecting the
// typed setter from the value's dynamic type.
func SetVariable(inst Instance, id model.VariableID, value model.ScalarValue) (bool, error) {
	ids := []model.VariableID{id}
	switch x := value.(type) {
	case float64:
		return inst.SetRealVariables(ids, []float64{x})
	case int32:
		return inst.SetIntegerVariables(ids, []int32{x})
	case bool:
		return inst.SetBooleanVariables(ids, []bool{x})
	case string:
		return inst.SetStringVariables(ids, []string{x})
	}
	return false, fmt.Errorf("unsupported scalar value of type %T", value)
}
