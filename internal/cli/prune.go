package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPruneCommand(s *state) *cobra.Command {
	var maxRecords, retentionDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old ideas once the store grows past its record cap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := s.openApp(ctx, nil)
			if err != nil {
				return err
			}
			defer application.Close()

			n, err := application.Prune(ctx, maxRecords, retentionDays)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d ideas\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "prune only above this many records (default from config)")
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "delete ideas older than this (default from config)")
	return cmd
}
