package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/kyllingstad/coral/model"
)

// DataHeaderSize is the size of the header that starts every published
// variable frame. The header identifies the (slave, variable) pair and
// doubles as the subscription prefix on the SUB side.
const DataHeaderSize = 4

// EncodeDataHeader encodes the identity of a published variable as the
// 4-byte frame header: slave ID and variable ID, each 16 bits little
// endian. Variable IDs above 65535 cannot travel on the data plane.
func EncodeDataHeader(v model.Variable) ([]byte, error) {
	if v.ID > 0xFFFF {
		return nil, fmt.Errorf("variable ID %d does not fit in the data-plane header", v.ID)
	}
	buf := make([]byte, DataHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], v.Slave)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(v.ID))
	return buf, nil
}

// DecodeDataHeader decodes the header of a published variable frame.
func DecodeDataHeader(frame []byte) (model.Variable, error) {
	if len(frame) < DataHeaderSize {
		return model.Variable{}, fmt.Errorf("variable frame has %d bytes, want at least %d", len(frame), DataHeaderSize)
	}
	return model.Variable{
		Slave: binary.LittleEndian.Uint16(frame[0:2]),
		ID:    model.VariableID(binary.LittleEndian.Uint16(frame[2:4])),
	}, nil
}

// EncodeDataFrame builds a complete data-plane frame: header followed by
// the borsh-encoded value payload.
func EncodeDataFrame(v model.Variable, value model.ScalarValue) ([]byte, error) {
	header, err := EncodeDataHeader(v)
	if err != nil {
		return nil, err
	}
	payload, err := FromScalarValue(value)
	if err != nil {
		return nil, err
	}
	data, err := Encode(payload)
	if err != nil {
		return nil, err
	}
	return append(header, data...), nil
}

// DecodeDataFrame splits a data-plane frame into variable identity and
// value.
func DecodeDataFrame(frame []byte) (model.Variable, model.ScalarValue, error) {
	v, err := DecodeDataHeader(frame)
	if err != nil {
		return model.Variable{}, nil, err
	}
	var payload ScalarPayload
	if err := Decode(frame[DataHeaderSize:], &payload); err != nil {
		return model.Variable{}, nil, err
	}
	value, err := payload.ToScalarValue()
	if err != nil {
		return model.Variable{}, nil, err
	}
	return v, value, nil
}
