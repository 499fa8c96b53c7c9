package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := s.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.Summary())
			if err := cfg.Validate(); err != nil {
				return &ExitError{Code: exitFailure, Err: fmt.Errorf("invalid configuration: %w", err)}
			}
			return nil
		},
	})
	return cmd
}
