package cmd

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kyllingstad/coral/event"
	"github.com/kyllingstad/coral/master"
	"github.com/kyllingstad/coral/model"
)

// runCmd drives an execution as the master process.
var runCmd = &cobra.Command{
	Use:   "run <system config> <execution config>",
	Short: "Run a co-simulation as the master",
	Long: "Run a co-simulation as the master process. The system config " +
		"declares the participating slaves (which must already be running), " +
		"their endpoints, initial values and variable connections; the " +
		"execution config sets the time frame and step size.",
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		sysCfg, err := LoadSystemConfig(args[0])
		if err != nil {
			logrus.Fatal(err)
		}
		execCfg, err := LoadExecutionConfig(args[1])
		if err != nil {
			logrus.Fatal(err)
		}

		m, locators, err := buildModel(sysCfg)
		if err != nil {
			logrus.Fatal(err)
		}

		opts := master.DefaultExecutionOptions()
		opts.StartTime = execCfg.StartTime
		opts.MaxTime = execCfg.StopTime
		opts.CommTimeout = time.Duration(execCfg.CommTimeoutMS) * time.Millisecond
		opts.SlaveVariableRecvTimeout = time.Duration(execCfg.VariableRecvTimeoutMS) * time.Millisecond

		reactor := event.NewReactor()
		exec, err := master.NewExecution(reactor, m, locators, opts)
		if err != nil {
			logrus.Fatal(err)
		}
		startTime := time.Now()
		if err := exec.Simulate(execCfg.StepSize); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulated %g seconds in %v",
			execCfg.StopTime-execCfg.StartTime, time.Since(startTime))
	},
}

// buildModel validates the configured graph through the model builder
// and collects the slave locators.
func buildModel(cfg *SystemConfig) (*master.Model, map[string]master.SlaveLocator, error) {
	builder := master.NewModelBuilder()
	locators := make(map[string]master.SlaveLocator, len(cfg.Slaves))
	types := make(map[string]model.SlaveTypeDescription, len(cfg.Slaves))

	for name, entry := range cfg.Slaves {
		inst, err := NewDemoInstance(entry.Model)
		if err != nil {
			return nil, nil, err
		}
		td, err := inst.TypeDescription()
		if err != nil {
			return nil, nil, err
		}
		if err := builder.AddSlave(name, td); err != nil {
			return nil, nil, err
		}
		types[name] = td
		locators[name] = master.SlaveLocator{Control: entry.Control, DataPub: entry.DataPub}
	}

	for name, entry := range cfg.Slaves {
		for varName, raw := range entry.Init {
			varDesc, ok := types[name].VariableByName(varName)
			if !ok {
				return nil, nil, fmt.Errorf("slave %q has no variable %q", name, varName)
			}
			value, err := coerceScalar(varDesc.DataType, raw)
			if err != nil {
				return nil, nil, err
			}
			qvn := model.QualifiedVariableName{Slave: name, Variable: varName}
			if err := builder.SetInitialValue(qvn, value); err != nil {
				return nil, nil, err
			}
		}
	}

	for target, source := range cfg.Connections {
		targetQVN, err := model.ParseQualifiedVariableName(target)
		if err != nil {
			return nil, nil, err
		}
		sourceQVN, err := model.ParseQualifiedVariableName(source)
		if err != nil {
			return nil, nil, err
		}
		if err := builder.Connect(sourceQVN, targetQVN); err != nil {
			return nil, nil, err
		}
	}

	for _, unconnected := range builder.GetUnconnectedInputs() {
		logrus.Warnf("Input variable %s is not connected", unconnected)
	}
	return builder.Build(), locators, nil
}
