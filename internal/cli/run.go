package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"IdeaDigest/internal/app"
	"IdeaDigest/internal/config"
)

func newRunCommand(s *state) *cobra.Command {
	var (
		req   app.RunRequest
		since string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, score and store ideas once, then write the digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := s.openApp(ctx, func(cfg *config.Config) {
				if since != "" {
					cfg.Sources.GitHub.Since = since
				}
			})
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Run(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), result.Summary())

			switch {
			case ctx.Err() != nil:
				return &ExitError{Code: exitInterrupted, Err: errors.New("interrupted")}
			case result.AllSourcesFailed():
				return &ExitError{Code: exitFailure, Err: errors.New("all sources failed")}
			case result.Failed():
				return &ExitError{Code: exitFailure}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&req.DryRun, "dry-run", "n", false, "fetch and score only; skip storage and digest")
	f.IntVarP(&req.LimitPerSource, "limit-per-source", "l", 0, "maximum ideas per source (default from config)")
	f.StringSliceVar(&req.Sources, "sources", nil, "comma separated sources to run (default from config)")
	f.StringVar(&since, "since", "", "GitHub trending window: daily, weekly or monthly")
	f.IntVar(&req.DigestLimit, "digest-limit", 0, "top ideas in the digest (default from config)")
	f.IntVar(&req.DigestDays, "digest-days", 0, "use ideas from the last N days instead of the top list")
	f.BoolVar(&req.SkipDigest, "skip-digest", false, "do not write the digest")
	return cmd
}
