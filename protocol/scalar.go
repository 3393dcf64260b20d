package protocol

import (
	"fmt"

	"github.com/kyllingstad/coral/model"
)

// ScalarPayload is the wire form of a model.ScalarValue. All value fields
// are always present so the layout is fixed; Kind selects the meaningful
// one.
type ScalarPayload struct {
	Kind    uint8 // model.DataType
	Real    float64
	Integer int32
	Boolean bool
	String  string
}

// FromScalarValue converts a scalar value into its wire form.
func FromScalarValue(v model.ScalarValue) (ScalarPayload, error) {
	switch x := v.(type) {
	case float64:
		return ScalarPayload{Kind: uint8(model.RealDataType), Real: x}, nil
	case int32:
		return ScalarPayload{Kind: uint8(model.IntegerDataType), Integer: x}, nil
	case bool:
		return ScalarPayload{Kind: uint8(model.BooleanDataType), Boolean: x}, nil
	case string:
		return ScalarPayload{Kind: uint8(model.StringDataType), String: x}, nil
	}
	return ScalarPayload{}, fmt.Errorf("unsupported scalar value of type %T", v)
}

// ToScalarValue converts the wire form back into a scalar value.
func (p ScalarPayload) ToScalarValue() (model.ScalarValue, error) {
	switch model.DataType(p.Kind) {
	case model.RealDataType:
		return p.Real, nil
	case model.IntegerDataType:
		return p.Integer, nil
	case model.BooleanDataType:
		return p.Boolean, nil
	case model.StringDataType:
		return p.String, nil
	}
	return nil, fmt.Errorf("unsupported scalar payload kind %d", p.Kind)
}
