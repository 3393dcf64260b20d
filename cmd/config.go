package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kyllingstad/coral/model"
)

// SystemConfig describes the simulation graph: which slaves take part,
// where they listen, their initial values, and the variable connections
// between them.
type SystemConfig struct {
	Slaves map[string]SlaveEntry `yaml:"slaves"`
	// Connections maps each target (input) variable to its source
	// (output) variable, both in "slave.variable" form.
	Connections map[string]string `yaml:"connections"`
}

// SlaveEntry describes one slave in the system configuration.
type SlaveEntry struct {
	Model   string         `yaml:"model"`   // demo model name
	Control string         `yaml:"control"` // control endpoint
	DataPub string         `yaml:"datapub"` // data-publish endpoint
	Init    map[string]any `yaml:"init"`    // initial variable values
}

// ExecutionConfig carries the execution-wide settings.
type ExecutionConfig struct {
	StartTime             float64 `yaml:"start_time"`
	StopTime              float64 `yaml:"stop_time"`
	StepSize              float64 `yaml:"step_size"`
	CommTimeoutMS         int64   `yaml:"comm_timeout_ms"`
	VariableRecvTimeoutMS int64   `yaml:"variable_recv_timeout_ms"`
}

// LoadSystemConfig reads and validates a system configuration file.
func LoadSystemConfig(path string) (*SystemConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading system config: %w", err)
	}
	var cfg SystemConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing system config: %w", err)
	}
	if len(cfg.Slaves) == 0 {
		return nil, fmt.Errorf("system config declares no slaves")
	}
	for name, entry := range cfg.Slaves {
		if entry.Model == "" {
			return nil, fmt.Errorf("slave %q declares no model", name)
		}
		if entry.Control == "" || entry.DataPub == "" {
			return nil, fmt.Errorf("slave %q is missing an endpoint", name)
		}
	}
	return &cfg, nil
}

// LoadExecutionConfig reads and validates an execution configuration
// file.
func LoadExecutionConfig(path string) (*ExecutionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading execution config: %w", err)
	}
	// The control timeout must exceed the variable-exchange timeout;
	// see master.DefaultExecutionOptions.
	cfg := ExecutionConfig{
		CommTimeoutMS:         5000,
		VariableRecvTimeoutMS: 1000,
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing execution config: %w", err)
	}
	if cfg.StepSize <= 0 {
		return nil, fmt.Errorf("step_size must be positive, got %g", cfg.StepSize)
	}
	if cfg.StopTime <= cfg.StartTime {
		return nil, fmt.Errorf("stop_time (%g) must be greater than start_time (%g)",
			cfg.StopTime, cfg.StartTime)
	}
	return &cfg, nil
}

// coerceScalar converts a YAML value into the scalar type a variable
// declares. YAML gives integers for numbers like "2", so numeric types
// need widening or narrowing.
func coerceScalar(declared model.DataType, v any) (model.ScalarValue, error) {
	switch declared {
	case model.RealDataType:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int:
			return float64(x), nil
		}
	case model.IntegerDataType:
		if x, ok := v.(int); ok {
			return int32(x), nil
		}
	case model.BooleanDataType:
		if x, ok := v.(bool); ok {
			return x, nil
		}
	case model.StringDataType:
		if x, ok := v.(string); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) does not match declared type %s", v, v, declared)
}
