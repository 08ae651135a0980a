package cmd

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/trace"
)

func newRunCmd() *cobra.Command {
	var (
		networkPath string // Network description file
		timesteps   int    // Overrides n_timesteps when >= 0
		traceLevel  string // Hook dispatch trace verbosity
		maxRecords  int    // Cap on recorded dispatches
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dry-run a network on the host device",
		Long: `Run builds the network, compiles both step kernels with the recording
compiler and runs every division on the in-memory host device. Kernels do
not execute; the run exercises the host side: memory initialization,
buffer swaps, probe flushes and host consumers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !trace.IsValidTraceLevel(traceLevel) {
				return fmt.Errorf("invalid trace level %q; valid: none, hooks, all", traceLevel)
			}
			s, _, rc, err := loadSimulation(networkPath, buildOptions{timesteps: timesteps})
			if err != nil {
				return err
			}

			var st *trace.SimulationTrace
			if level := trace.TraceLevel(traceLevel); level != "" && level != trace.TraceLevelNone {
				st = trace.NewSimulationTrace(trace.TraceConfig{Level: level, MaxRecords: maxRecords})
				sim.TraceInto(s, st)
			}

			startTime := time.Now()
			if err := s.RunContext(cmd.Context()); err != nil {
				return err
			}
			logrus.Infof("ran %d timesteps in %d divisions (%d launches) in %v",
				s.NTimesteps, s.NDivisions(), len(rc.Launches), time.Since(startTime))

			out := cmd.OutOrStdout()
			if err := s.Metrics().Print(out); err != nil {
				return err
			}
			if st != nil {
				trace.Summarize(st).Print(out)
			}
			return s.Release()
		},
	}
	cmd.Flags().StringVar(&networkPath, "network", "", "Network description file (.yaml, .yml or .hcl)")
	cmd.Flags().IntVar(&timesteps, "timesteps", -1, "Number of timesteps (negative keeps the network's value)")
	cmd.Flags().StringVar(&traceLevel, "trace", "none", "Hook dispatch trace level (none, hooks, all)")
	cmd.Flags().IntVar(&maxRecords, "trace-max-records", 0, "Maximum dispatches recorded (0 = unlimited)")
	return cmd
}
