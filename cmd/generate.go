package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	var (
		networkPath string // Network description file
		printHooks  bool   // Annotate source with hook stage comments
		outPath     string // Output file; empty writes to stdout
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the step kernel source of a network",
		Long: `Generate builds the network described by --network and prints the
step kernel source it produces. Nothing is allocated.

Examples:
  clegans generate --network examples/coba.yaml
  clegans generate --network examples/coba.hcl --print-hooks --out step.cl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, _, err := loadSimulation(networkPath, buildOptions{printHooks: printHooks, timesteps: -1})
			if err != nil {
				return err
			}
			src, err := s.Generate()
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), src)
				return err
			}
			if err := os.WriteFile(outPath, []byte(src), 0o644); err != nil {
				return fmt.Errorf("writing source: %w", err)
			}
			logrus.Infof("wrote %d bytes of source to %s", len(src), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&networkPath, "network", "", "Network description file (.yaml, .yml or .hcl)")
	cmd.Flags().BoolVar(&printHooks, "print-hooks", false, "Write a comment naming each code generation hook stage")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the source to this file instead of stdout")
	return cmd
}
