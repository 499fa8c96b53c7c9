package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

func newDigestCommand(s *state) *cobra.Command {
	var (
		date     string
		limit    int
		days     int
		minScore float64
		printOut bool
		style    string
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Regenerate the digest from stored ideas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := s.openApp(ctx, nil)
			if err != nil {
				return err
			}
			defer application.Close()

			req := application.DigestRequest(time.Time{})
			if date != "" {
				d, err := time.ParseInLocation(time.DateOnly, date, req.Date.Location())
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				req.Date = d
			}
			f := cmd.Flags()
			if f.Changed("days") {
				req.Days = days
				if !f.Changed("limit") {
					req.Limit = 0
				}
			}
			if f.Changed("limit") {
				req.Limit = limit
			}
			if f.Changed("min-score") {
				req.MinScore = minScore
			}

			if printOut {
				rendered, err := application.RenderDigest(ctx, req)
				if err != nil {
					return err
				}
				out, err := renderTerminal(rendered.Markdown, style)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			}

			result := application.Digest(ctx, req)
			switch {
			case !result.Success:
				return &ExitError{Code: exitFailure, Err: errors.New("digest failed: " + result.Error)}
			case result.Path == "":
				fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Digest written to %s (%d items, %d themes)\n",
					result.Path, result.ItemsIncluded, len(result.ThemesCovered))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&date, "date", "", "digest date as YYYY-MM-DD (default today)")
	f.IntVar(&limit, "limit", 0, "top ideas to include")
	f.IntVar(&days, "days", 0, "include ideas from the last N days instead of the top list")
	f.Float64Var(&minScore, "min-score", 0, "minimum score to include")
	f.BoolVar(&printOut, "print", false, "render to the terminal instead of writing the file")
	f.StringVar(&style, "style", "auto", "glamour style for --print (auto, dark, light, notty)")
	return cmd
}

func renderTerminal(markdown, style string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(100)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("terminal renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
