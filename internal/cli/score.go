package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/scoring"
)

func newScoreCommand(s *state) *cobra.Command {
	var (
		title       string
		description string
		date        string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Explain how a title and description would score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(title) == "" {
				return errors.New("--title is required")
			}
			cfg, err := s.loadConfig()
			if err != nil {
				return err
			}
			scorer, err := scoring.NewScorer(cfg.Themes(), s.logger(cfg))
			if err != nil {
				return err
			}

			var sourceDate *time.Time
			if date != "" {
				d, err := time.Parse(time.RFC3339, date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				sourceDate = &d
			}

			b := scorer.Breakdown(domain.Idea{Title: title, Description: description, SourceDate: sourceDate}, time.Now())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Score:      %.3f\n", b.Score)
			fmt.Fprintf(out, "Themes:     %.3f x %.1f\n", b.ThemeScore, scoring.WeightThemes)
			fmt.Fprintf(out, "Recency:    %.3f x %.1f\n", b.RecencyScore, scoring.WeightRecency)
			fmt.Fprintf(out, "Popularity: %.3f x %.1f\n", b.PopularityScore, scoring.WeightPopularity)

			matches := scorer.ExplainThemes(title, description)
			if len(matches) == 0 {
				fmt.Fprintln(out, "No themes matched")
				return nil
			}
			fmt.Fprintln(out, "Matched themes:")
			for _, m := range matches {
				fmt.Fprintf(out, "  %s (weight %.1f): %s\n", m.Theme, scorer.Weight(m.Theme), strings.Join(m.Keywords, ", "))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&title, "title", "", "idea title")
	f.StringVar(&description, "description", "", "idea description")
	f.StringVar(&date, "date", "", "source date as RFC3339 (default: unknown)")
	return cmd
}
