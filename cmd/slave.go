package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kyllingstad/coral/bus"
	"github.com/kyllingstad/coral/slave"
)

var (
	slaveModel        string // Demo model the slave runs
	controlEndpoint   string // Endpoint for control messages from the master
	dataPubEndpoint   string // Endpoint for publishing output variables
	csvOutputDir      string // Directory for CSV variable logs (empty = off)
	inactivityTimeout int64  // Master inactivity timeout in milliseconds
)

// slaveCmd runs one slave process hosting a built-in demo model.
var slaveCmd = &cobra.Command{
	Use:   "slave",
	Short: "Run a single slave process",
	Long: fmt.Sprintf("Run a single slave process hosting a built-in demo model "+
		"(%s). The bound endpoints are printed on startup so they can be "+
		"entered into the master's system config; wildcard endpoints "+
		"(tcp://*:*) are resolved to concrete ones.",
		strings.Join(DemoModelNames(), ", ")),
	Run: func(cmd *cobra.Command, args []string) {
		inst, err := NewDemoInstance(slaveModel)
		if err != nil {
			logrus.Fatal(err)
		}
		if csvOutputDir != "" {
			inst = slave.NewLoggingInstance(inst, csvOutputDir, "")
		}
		runner, err := bus.NewRunner(
			inst,
			controlEndpoint,
			dataPubEndpoint,
			time.Duration(inactivityTimeout)*time.Millisecond)
		if err != nil {
			logrus.Fatal(err)
		}
		fmt.Printf("control %s\n", runner.BoundControlEndpoint())
		fmt.Printf("datapub %s\n", runner.BoundDataPubEndpoint())
		if err := runner.Run(); err != nil {
			logrus.Fatalf("Slave failed: %v", err)
		}
		logrus.Info("Slave terminated normally.")
	},
}

func init() {
	slaveCmd.Flags().StringVar(&slaveModel, "model", "", "Demo model to run (required)")
	slaveCmd.Flags().StringVar(&controlEndpoint, "control", "tcp://*:*", "Control endpoint to bind")
	slaveCmd.Flags().StringVar(&dataPubEndpoint, "datapub", "tcp://*:*", "Data-publish endpoint to bind")
	slaveCmd.Flags().StringVar(&csvOutputDir, "csv-output", "", "Write variable values to CSV files in this directory")
	slaveCmd.Flags().Int64Var(&inactivityTimeout, "inactivity-timeout-ms", 600000,
		"Exit when no master communication arrives for this long")
	_ = slaveCmd.MarkFlagRequired("model")
}
