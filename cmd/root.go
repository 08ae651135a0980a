package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
	"github.com/clegans/clegans/sim/netconf"

	// Registers the spiking node kinds with netconf.
	_ "github.com/clegans/clegans/sim/spiking"
)

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	var logLevel string // Log verbosity level

	root := &cobra.Command{
		Use:           "clegans",
		Short:         "Code-generating simulator for timestep-driven device kernels",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			logrus.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	root.AddCommand(newGenerateCmd(), newMemoryCmd(), newRunCmd())
	return root
}

// Execute runs the CLI root command
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Errorf("%v", err)
		os.Exit(1)
	}
}

// buildOptions adjust a loaded network before it is built.
type buildOptions struct {
	printHooks bool
	timesteps  int // negative keeps the file's value; others finalize early
	maxBytes   int64
}

// loadSimulation reads a network file and builds it on an in-memory host
// device with a recording compiler.
func loadSimulation(path string, opts buildOptions) (*sim.Simulation, *device.Host, *device.RecordingCompiler, error) {
	if path == "" {
		return nil, nil, nil, fmt.Errorf("--network is required")
	}
	net, err := netconf.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	if opts.printHooks {
		net.Simulation.PrintHooks = true
	}
	if opts.timesteps >= 0 {
		net.Simulation.NTimesteps = opts.timesteps
	}
	if opts.maxBytes < 0 {
		return nil, nil, nil, fmt.Errorf("device capacity must be >= 0, got %d", opts.maxBytes)
	}
	dev := device.NewHost(opts.maxBytes)
	rc := device.NewRecordingCompiler()
	s, err := netconf.Build(net, dev, rc)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building %s: %w", path, err)
	}
	// Probe buffers sized in the file must still fit the overridden run.
	if opts.timesteps >= 0 {
		if err := s.Finalize(); err != nil {
			return nil, nil, nil, fmt.Errorf("--timesteps %d does not fit %s: %w", opts.timesteps, path, err)
		}
	}
	return s, dev, rc, nil
}
