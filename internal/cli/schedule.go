package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"IdeaDigest/internal/app"
)

const shutdownTimeout = 30 * time.Second

func newScheduleCommand(s *state) *cobra.Command {
	var req app.RunRequest

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on the configured cron expression until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := s.openApp(ctx, nil)
			if err != nil {
				return err
			}
			defer application.Close()

			sched, err := application.Scheduler(req)
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "scheduler running, press Ctrl+C to stop")

			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return sched.Stop(stopCtx)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&req.LimitPerSource, "limit-per-source", "l", 0, "maximum ideas per source (default from config)")
	f.StringSliceVar(&req.Sources, "sources", nil, "comma separated sources to run (default from config)")
	f.BoolVar(&req.SkipDigest, "skip-digest", false, "do not write the digest")
	return cmd
}
