package slave

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/kyllingstad/coral/model"
)

// LoggingInstance decorates an Instance so that the values of all its
// variables are appended to a CSV file after every completed time step.
// The file is created when the simulation starts, named
// "<prefix><slave name>.csv" in the output directory, with one column
// per variable plus a leading Time column.
type LoggingInstance struct {
	Instance

	outputDir string
	prefix    string
	slaveName string

	file    *os.File
	writer  *csv.Writer
	columns []model.VariableDescription
	nextT   model.TimePoint
}

// NewLoggingInstance wraps inner so its variable values are logged to a
// CSV file under outputDir.
func NewLoggingInstance(inner Instance, outputDir, prefix string) *LoggingInstance {
	return &LoggingInstance{
		Instance:  inner,
		outputDir: outputDir,
		prefix:    prefix,
	}
}

// Setup captures the slave name for the output file name.
func (li *LoggingInstance) Setup(
	slaveName, executionName string,
	startTime, stopTime model.TimePoint,
	adaptiveStepSize bool,
	relativeTolerance float64,
) error {
	li.slaveName = slaveName
	li.nextT = startTime
	return li.Instance.Setup(
		slaveName, executionName, startTime, stopTime, adaptiveStepSize, relativeTolerance)
}

// StartSimulation opens the output file and writes the header row.
func (li *LoggingInstance) StartSimulation() error {
	if err := li.Instance.StartSimulation(); err != nil {
		return err
	}
	td, err := li.Instance.TypeDescription()
	if err != nil {
		return err
	}
	li.columns = td.Variables
	name := filepath.Join(li.outputDir, li.prefix+li.slaveName+".csv")
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating output file %q: %w", name, err)
	}
	li.file = f
	li.writer = csv.NewWriter(f)
	header := []string{"Time"}
	for _, v := range li.columns {
		header = append(header, v.Name)
	}
	if err := li.writer.Write(header); err != nil {
		return err
	}
	// The initial state counts as the step ending at the start time.
	return li.writeRow(li.nextT)
}

// DoStep performs the step and, if it succeeded, logs a row at the end
// of the step.
func (li *LoggingInstance) DoStep(currentT model.TimePoint, deltaT model.TimeDuration) (bool, error) {
	ok, err := li.Instance.DoStep(currentT, deltaT)
	if err != nil || !ok {
		return ok, err
	}
	li.nextT = currentT + deltaT
	if werr := li.writeRow(li.nextT); werr != nil {
		return false, werr
	}
	return true, nil
}

// EndSimulation flushes and closes the output file.
func (li *LoggingInstance) EndSimulation() error {
	if li.writer != nil {
		li.writer.Flush()
		if err := li.writer.Error(); err != nil {
			logrus.Warnf("slave: flushing variable log: %v", err)
		}
	}
	if li.file != nil {
		if err := li.file.Close(); err != nil {
			logrus.Warnf("slave: closing variable log: %v", err)
		}
		li.file = nil
	}
	return li.Instance.EndSimulation()
}

func (li *LoggingInstance) writeRow(t model.TimePoint) error {
	row := []string{strconv.FormatFloat(t, 'g', -1, 64)}
	for _, v := range li.columns {
		value, err := GetVariable(li.Instance, v)
		if err != nil {
			return err
		}
		row = append(row, formatScalar(value))
	}
	if err := li.writer.Write(row); err != nil {
		return err
	}
	li.writer.Flush()
	return li.writer.Error()
}

func formatScalar(v model.ScalarValue) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	}
	return ""
}
