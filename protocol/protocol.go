// Package protocol defines the messages exchanged between master and
// slave: the control-protocol event and response identifiers with their
// binary payloads, and the framing of the variable data plane.
//
// Payload structs are encoded with borsh, which gives a deterministic
// byte layout without a schema compiler. Fixed-width wire fields that sit
// outside a payload (the reply state tag and the data-plane header) are
// encoded by hand in little-endian order.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/near/borsh-go"

	"github.com/kyllingstad/coral/model"
)

// ProtocolVersion is negotiated in the HELLO exchange. A slave rejects
// masters that require a version it does not speak.
const ProtocolVersion uint16 = 0

// Control events, sent by the master. The event identifier travels as a
// frame of its own, so these are plain strings.
const (
	EventHello      = "HELLO"
	EventSetup      = "SETUP"
	EventSetVars    = "SET_VARS"
	EventGetVars    = "GET_VARS"
	EventSetPeers   = "SET_PEERS"
	EventDescribe   = "DESCRIBE"
	EventStartSim   = "START_SIM"
	EventResendVars = "RESEND_VARS"
	EventStep       = "STEP"
	EventAcceptStep = "ACCEPT_STEP"
	EventTerminate  = "TERMINATE"
)

// Response identifiers, sent by the slave.
const (
	ResponseHello       = "HELLO"
	ResponseOK          = "OK"
	ResponseStepOK      = "STEP_OK"
	ResponseStepFailed  = "STEP_FAILED"
	ResponseValues      = "VALUES"
	ResponseDescription = "DESCRIPTION"
	ResponseError       = "ERROR"
)

// Slave agent state tags, carried in every reply.
const (
	StateIndeterminate uint16 = 0
	StateConnecting    uint16 = 1
	StateInit          uint16 = 2
	StateReady         uint16 = 3
	StatePublished     uint16 = 4
	StateStepFailed    uint16 = 5
	StateTerminated    uint16 = 6
)

// StateName returns a readable name for a state tag.
func StateName(state uint16) string {
	switch state {
	case StateConnecting:
		return "CONNECTING"
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StatePublished:
		return "PUBLISHED"
	case StateStepFailed:
		return "STEP FAILED"
	case StateTerminated:
		return "TERMINATED"
	}
	return "INDETERMINATE"
}

// EncodeState encodes a reply state tag as 2 bytes, little endian.
func EncodeState(state uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, state)
	return buf
}

// DecodeState decodes a reply state tag frame.
func DecodeState(frame []byte) (uint16, error) {
	if len(frame) != 2 {
		return 0, fmt.Errorf("state frame has %d bytes, want 2", len(frame))
	}
	return binary.LittleEndian.Uint16(frame), nil
}

// HelloData is the payload of the HELLO event and its reply.
type HelloData struct {
	Protocol uint16
}

// SetupData is the payload of the SETUP event.
type SetupData struct {
	SlaveID               uint16
	SlaveName             string
	ExecutionName         string
	StartTime             float64
	StopTime              float64 // +Inf travels as IEEE 754, no special casing
	AdaptiveStepSize      bool
	RelativeTolerance     float64
	VariableRecvTimeoutMS int64 // negative means no timeout
}

// VarSetting assigns a value to a variable, connects it to a remote
// output, or both.
type VarSetting struct {
	VariableID     uint32
	HasValue       bool
	Value          ScalarPayload
	Connected      bool
	SourceSlave    uint16
	SourceVariable uint32
}

// SetVarsData is the payload of the SET_VARS event.
type SetVarsData struct {
	Settings []VarSetting
}

// GetVarsData is the payload of the GET_VARS event.
type GetVarsData struct {
	VariableIDs []uint32
}

// VarValuesData is the payload of the VALUES reply.
type VarValuesData struct {
	VariableIDs []uint32
	Values      []ScalarPayload
}

// SetPeersData is the payload of the SET_PEERS event: the data-publish
// endpoints of all peer slaves this slave consumes variables from.
type SetPeersData struct {
	Endpoints []string
}

// StepData is the payload of the STEP event.
type StepData struct {
	StepID    int32
	TimePoint float64
	StepSize  float64
}

// ErrorData is the payload of the ERROR reply.
type ErrorData struct {
	Message string
}

// VariableDef mirrors model.VariableDescription for the DESCRIPTION
// reply.
type VariableDef struct {
	ID          uint32
	Name        string
	DataType    uint8
	Causality   uint8
	Variability uint8
}

// DescriptionData is the payload of the DESCRIPTION reply.
type DescriptionData struct {
	Name        string
	UUID        string
	Description string
	Author      string
	Version     string
	Variables   []VariableDef
}

// FromTypeDescription converts a model type description into its wire
// form.
func FromTypeDescription(td model.SlaveTypeDescription) DescriptionData {
	d := DescriptionData{
		Name:        td.Name,
		UUID:        td.UUID,
		Description: td.Description,
		Author:      td.Author,
		Version:     td.Version,
	}
	for _, v := range td.Variables {
		d.Variables = append(d.Variables, VariableDef{
			ID:          v.ID,
			Name:        v.Name,
			DataType:    uint8(v.DataType),
			Causality:   uint8(v.Causality),
			Variability: uint8(v.Variability),
		})
	}
	return d
}

// ToTypeDescription converts the wire form back into a model type
// description.
func (d DescriptionData) ToTypeDescription() model.SlaveTypeDescription {
	td := model.SlaveTypeDescription{
		Name:        d.Name,
		UUID:        d.UUID,
		Description: d.Description,
		Author:      d.Author,
		Version:     d.Version,
	}
	for _, v := range d.Variables {
		td.Variables = append(td.Variables, model.VariableDescription{
			ID:          v.ID,
			Name:        v.Name,
			DataType:    model.DataType(v.DataType),
			Causality:   model.Causality(v.Causality),
			Variability: model.Variability(v.Variability),
		})
	}
	return td
}

// Encode serializes a payload struct.
func Encode(v any) ([]byte, error) {
	data, err := borsh.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return data, nil
}

// Decode deserializes a payload struct.
func Decode(data []byte, v any) error {
	if err := borsh.Deserialize(v, data); err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	return nil
}
