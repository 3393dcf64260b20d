package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kyllingstad/coral/model"
)

func TestDataFrameCarriesVariableIdentityAndValue(t *testing.T) {
	v := model.Variable{Slave: 3, ID: 17}
	frame, err := EncodeDataFrame(v, 2.5)
	require.NoError(t, err)
	require.Len(t, frame[:DataHeaderSize], 4)

	gotVar, gotValue, err := DecodeDataFrame(frame)
	require.NoError(t, err)
	require.Equal(t, v, gotVar)
	require.Equal(t, 2.5, gotValue)
}

func TestDataHeaderIsSubscriptionPrefix(t *testing.T) {
	// Frames for the same variable must share an identical prefix so a
	// SUB socket can filter on it, and frames for different variables
	// must not.
	a1, err := EncodeDataFrame(model.Variable{Slave: 1, ID: 2}, 1.0)
	require.NoError(t, err)
	a2, err := EncodeDataFrame(model.Variable{Slave: 1, ID: 2}, -4.0)
	require.NoError(t, err)
	b, err := EncodeDataFrame(model.Variable{Slave: 1, ID: 3}, 1.0)
	require.NoError(t, err)

	require.Equal(t, a1[:DataHeaderSize], a2[:DataHeaderSize])
	require.NotEqual(t, a1[:DataHeaderSize], b[:DataHeaderSize])
}

func TestDataHeaderRejectsWideVariableIDs(t *testing.T) {
	_, err := EncodeDataHeader(model.Variable{Slave: 1, ID: 0x10000})
	require.Error(t, err)
}

func TestStateTagIsLittleEndian(t *testing.T) {
	frame := EncodeState(StatePublished)
	require.Equal(t, []byte{4, 0}, frame)
	state, err := DecodeState(frame)
	require.NoError(t, err)
	require.Equal(t, StatePublished, state)

	_, err = DecodeState([]byte{1})
	require.Error(t, err)
}

func TestScalarPayloadRejectsUnsupportedTypes(t *testing.T) {
	_, err := FromScalarValue(int64(1))
	require.Error(t, err)

	_, err = ScalarPayload{Kind: 99}.ToScalarValue()
	require.Error(t, err)
}

func TestDescriptionRoundTrip(t *testing.T) {
	td := model.SlaveTypeDescription{
		Name:    "spring",
		UUID:    "0f2c8a4e-9a77-4b4e-8f6e-2d1c3b5a7e90",
		Author:  "coral",
		Version: "1.0",
		Variables: []model.VariableDescription{
			{ID: 0, Name: "force", DataType: model.RealDataType, Causality: model.OutputCausality, Variability: model.ContinuousVariability},
			{ID: 1, Name: "length", DataType: model.RealDataType, Causality: model.ParameterCausality, Variability: model.FixedVariability},
		},
	}
	data, err := Encode(FromTypeDescription(td))
	require.NoError(t, err)

	var decoded DescriptionData
	require.NoError(t, Decode(data, &decoded))
	require.Equal(t, td, decoded.ToTypeDescription())
}
