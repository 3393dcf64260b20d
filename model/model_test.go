package model

import "testing"

func TestIsValidSlaveName(t *testing.T) {
	valid := []string{"a", "A", "slave1", "my_slave", "S_1_b"}
	for _, s := range valid {
		if !IsValidSlaveName(s) {
			t.Errorf("IsValidSlaveName(%q): got false, want true", s)
		}
	}
	invalid := []string{"", "1slave", "_slave", "sla ve", "sla.ve", "sla-ve"}
	for _, s := range invalid {
		if IsValidSlaveName(s) {
			t.Errorf("IsValidSlaveName(%q): got true, want false", s)
		}
	}
}

func TestDataTypeOf(t *testing.T) {
	cases := []struct {
		value ScalarValue
		want  DataType
	}{
		{1.5, RealDataType},
		{int32(7), IntegerDataType},
		{true, BooleanDataType},
		{"foo", StringDataType},
	}
	for _, c := range cases {
		got, ok := DataTypeOf(c.value)
		if !ok || got != c.want {
			t.Errorf("DataTypeOf(%v): got (%v, %v), want (%v, true)", c.value, got, ok, c.want)
		}
	}
	if _, ok := DataTypeOf(int64(7)); ok {
		t.Error("DataTypeOf(int64): got ok, want not ok")
	}
}

func TestParseQualifiedVariableName(t *testing.T) {
	// GIVEN a well-formed name
	q, err := ParseQualifiedVariableName("widget.a")
	if err != nil {
		t.Fatalf("ParseQualifiedVariableName: unexpected error: %v", err)
	}
	if q.Slave != "widget" || q.Variable != "a" {
		t.Errorf("got (%q, %q), want (widget, a)", q.Slave, q.Variable)
	}
	if q.String() != "widget.a" {
		t.Errorf("String(): got %q, want widget.a", q.String())
	}

	// Everything after the first dot belongs to the variable name.
	q, err = ParseQualifiedVariableName("widget.a.b")
	if err != nil {
		t.Fatalf("ParseQualifiedVariableName: unexpected error: %v", err)
	}
	if q.Variable != "a.b" {
		t.Errorf("got variable %q, want a.b", q.Variable)
	}

	for _, s := range []string{"", "widget", "widget.", ".a", "."} {
		if _, err := ParseQualifiedVariableName(s); err == nil {
			t.Errorf("ParseQualifiedVariableName(%q): got nil error, want error", s)
		}
	}
}

func TestSlaveTypeDescriptionLookup(t *testing.T) {
	td := SlaveTypeDescription{
		Name: "widget",
		UUID: "6b3f1a2e-0000-0000-0000-000000000001",
		Variables: []VariableDescription{
			{ID: 0, Name: "a", DataType: RealDataType, Causality: OutputCausality, Variability: ContinuousVariability},
			{ID: 1, Name: "b", DataType: IntegerDataType, Causality: InputCausality, Variability: DiscreteVariability},
		},
	}
	v, ok := td.Variable(1)
	if !ok || v.Name != "b" {
		t.Errorf("Variable(1): got (%v, %v), want variable b", v, ok)
	}
	if _, ok := td.Variable(42); ok {
		t.Error("Variable(42): got ok, want not ok")
	}
	v, ok = td.VariableByName("a")
	if !ok || v.ID != 0 {
		t.Errorf("VariableByName(a): got (%v, %v), want variable 0", v, ok)
	}
	if _, ok := td.VariableByName("z"); ok {
		t.Error("VariableByName(z): got ok, want not ok")
	}
}
