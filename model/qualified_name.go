package model

import (
	"fmt"
	"strings"
)

// QualifiedVariableName refers to a variable by the pair of a slave name
// and a variable name, written "slave.variable" in string form.
type QualifiedVariableName struct {
	Slave    string
	Variable string
}

// NewQualifiedVariableName constructs a qualified variable name from its
// parts. Both parts must be non-empty.
func NewQualifiedVariableName(slave, variable string) (QualifiedVariableName, error) {
	if slave == "" || variable == "" {
		return QualifiedVariableName{}, fmt.Errorf(
			"qualified variable name requires a non-empty slave and variable name, got %q and %q",
			slave, variable)
	}
	return QualifiedVariableName{Slave: slave, Variable: variable}, nil
}

// ParseQualifiedVariableName parses the "slave.variable" string form.
func ParseQualifiedVariableName(s string) (QualifiedVariableName, error) {
	pos := strings.Index(s, ".")
	if pos < 1 || pos >= len(s)-1 {
		return QualifiedVariableName{}, fmt.Errorf("not a fully qualified variable name: %q", s)
	}
	return QualifiedVariableName{Slave: s[:pos], Variable: s[pos+1:]}, nil
}

// String returns the "slave.variable" form of the name.
func (q QualifiedVariableName) String() string {
	return q.Slave + "." + q.Variable
}
