package cmd

import (
	"github.com/spf13/cobra"
)

func newMemoryCmd() *cobra.Command {
	var (
		networkPath string // Network description file
		maxBytes    int64  // Host device capacity
	)
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Allocate a network and print its device memory summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, _, err := loadSimulation(networkPath, buildOptions{timesteps: -1, maxBytes: maxBytes})
			if err != nil {
				return err
			}
			if err := s.Allocate(); err != nil {
				return err
			}
			if err := s.MemorySummary(cmd.OutOrStdout()); err != nil {
				return err
			}
			return s.Release()
		},
	}
	cmd.Flags().StringVar(&networkPath, "network", "", "Network description file (.yaml, .yml or .hcl)")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "Device capacity in bytes (0 = unlimited)")
	return cmd
}
