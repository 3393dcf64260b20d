package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kyllingstad/coral/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSystemConfig(t *testing.T) {
	path := writeFile(t, "system.yaml", `
slaves:
  source:
    model: sine
    control: tcp://localhost:10001
    datapub: tcp://localhost:10002
    init:
      amplitude: 2.0
      frequency: 1
  amp:
    model: gain
    control: tcp://localhost:10003
    datapub: tcp://localhost:10004
    init:
      k: 10
connections:
  amp.u: source.y
`)
	cfg, err := LoadSystemConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Slaves, 2)
	require.Equal(t, "sine", cfg.Slaves["source"].Model)
	require.Equal(t, "source.y", cfg.Connections["amp.u"])

	// The whole config round-trips into a valid model.
	m, locators, err := buildModel(cfg)
	require.NoError(t, err)
	require.Equal(t, []string{"amp", "source"}, m.SlaveNames())
	require.Len(t, m.Connections(), 1)
	require.Equal(t, "tcp://localhost:10003", locators["amp"].Control)
	values := m.InitialValues()
	require.Equal(t, 2.0, values[model.QualifiedVariableName{Slave: "source", Variable: "amplitude"}])
	require.Equal(t, 1.0, values[model.QualifiedVariableName{Slave: "source", Variable: "frequency"}])
}

func TestLoadSystemConfig_Invalid(t *testing.T) {
	_, err := LoadSystemConfig(writeFile(t, "empty.yaml", "slaves: {}\n"))
	require.Error(t, err)

	_, err = LoadSystemConfig(writeFile(t, "nomodel.yaml", `
slaves:
  a:
    control: tcp://localhost:1
    datapub: tcp://localhost:2
`))
	require.Error(t, err)

	_, err = LoadSystemConfig(writeFile(t, "noendpoint.yaml", `
slaves:
  a:
    model: sine
`))
	require.Error(t, err)
}

func TestLoadExecutionConfig(t *testing.T) {
	cfg, err := LoadExecutionConfig(writeFile(t, "exec.yaml", `
start_time: 0.0
stop_time: 10.0
step_size: 0.01
`))
	require.NoError(t, err)
	require.Equal(t, 0.01, cfg.StepSize)
	// Timeouts default when unspecified.
	require.Equal(t, int64(5000), cfg.CommTimeoutMS)
	require.Equal(t, int64(1000), cfg.VariableRecvTimeoutMS)

	_, err = LoadExecutionConfig(writeFile(t, "badstep.yaml", `
start_time: 0.0
stop_time: 10.0
step_size: 0
`))
	require.Error(t, err)

	_, err = LoadExecutionConfig(writeFile(t, "badtimes.yaml", `
start_time: 5.0
stop_time: 5.0
step_size: 0.1
`))
	require.Error(t, err)
}

func TestCoerceScalar(t *testing.T) {
	v, err := coerceScalar(model.RealDataType, 2)
	require.NoError(t, err)
	require.Equal(t, 2.0, v)

	v, err = coerceScalar(model.IntegerDataType, 7)
	require.NoError(t, err)
	require.Equal(t, int32(7), v)

	v, err = coerceScalar(model.BooleanDataType, true)
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = coerceScalar(model.StringDataType, "x")
	require.NoError(t, err)
	require.Equal(t, "x", v)

	_, err = coerceScalar(model.RealDataType, "nope")
	require.Error(t, err)
	_, err = coerceScalar(model.IntegerDataType, 1.5)
	require.Error(t, err)
}
