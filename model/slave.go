package model

// SlaveID identifies a slave within a single execution.
type SlaveID = uint16

// InvalidSlaveID is never assigned to an actual slave.
const InvalidSlaveID SlaveID = 0

// SlaveTypeDescription describes a slave type: its identity and the
// variables its instances expose. It is immutable once published.
type SlaveTypeDescription struct {
	Name        string // the slave type name (non-empty)
	UUID        string // universally unique identifier for the type
	Description string // human-readable description
	Author      string // author information
	Version     string // version information
	Variables   []VariableDescription
}

// Variable returns the description of the variable with the given ID.
// The second return value is false if no such variable exists.
func (td SlaveTypeDescription) Variable(id VariableID) (VariableDescription, bool) {
	for _, v := range td.Variables {
		if v.ID == id {
			return v, true
		}
	}
	return VariableDescription{}, false
}

// VariableByName returns the description of the variable with the given
// name. The second return value is false if no such variable exists.
func (td SlaveTypeDescription) VariableByName(name string) (VariableDescription, bool) {
	for _, v := range td.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return VariableDescription{}, false
}

// SlaveDescription describes a specific slave in an execution.
type SlaveDescription struct {
	ID              SlaveID
	Name            string
	TypeDescription SlaveTypeDescription
}

// IsValidSlaveName reports whether s is a valid slave name, i.e. whether
// it matches [a-zA-Z][0-9a-zA-Z_]*.
func IsValidSlaveName(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c == '_' || c >= '0' && c <= '9'):
		default:
			return false
		}
	}
	return true
}
