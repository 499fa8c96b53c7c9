package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"IdeaDigest/internal/app"
	"IdeaDigest/internal/config"
	"IdeaDigest/internal/logging"
)

// Version is stamped at build time with -ldflags "-X IdeaDigest/internal/cli.Version=...".
var Version = "dev"

const (
	exitFailure     = 1
	exitInterrupted = 130
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

type state struct {
	configPath string
	verbose    bool
	quiet      bool

	stdout  io.Writer
	stderr  io.Writer
	appOpts []app.Option
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...app.Option) int {
	root := NewRootCommand(stdout, stderr, opts...)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		if ctx.Err() != nil {
			return exitInterrupted
		}
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if ctx.Err() != nil {
		return exitInterrupted
	}
	return exitFailure
}

// NewRootCommand builds the ideadigest command tree.
func NewRootCommand(stdout, stderr io.Writer, opts ...app.Option) *cobra.Command {
	s := &state{stdout: stdout, stderr: stderr, appOpts: opts}

	cmd := &cobra.Command{
		Use:   "ideadigest",
		Short: "Collect, score and digest ideas from tech feeds",
		Long: `ideadigest pulls candidate ideas from Hacker News, Product Hunt and
GitHub trending, scores them against interest themes, keeps them in a
deduplicated store and renders a daily Markdown digest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVarP(&s.configPath, "config", "c", "", "config file path (YAML); defaults to $IDEA_DIGEST_CONFIG")
	cmd.PersistentFlags().BoolVarP(&s.verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVarP(&s.quiet, "quiet", "q", false, "only log errors")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		newRunCommand(s),
		newDigestCommand(s),
		newScheduleCommand(s),
		newScoreCommand(s),
		newPruneCommand(s),
		newConfigCommand(s),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ideadigest %s\n", Version)
			},
		},
	)
	return cmd
}

func (s *state) loadConfig() (config.Config, error) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return config.Config{}, err
	}
	switch {
	case s.verbose:
		cfg.Logging.Level = "debug"
	case s.quiet:
		cfg.Logging.Level = "error"
	}
	return cfg, nil
}

func (s *state) logger(cfg config.Config) *slog.Logger {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format, s.stderr)
}

// openApp loads and validates config, then builds the application.
// mutate may adjust config before validation.
func (s *state) openApp(ctx context.Context, mutate func(*config.Config)) (*app.Application, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return app.New(ctx, cfg, s.logger(cfg), s.appOpts...)
}
