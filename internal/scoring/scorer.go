package scoring

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"IdeaDigest/internal/domain"
)

const (
	// MaxRecency is the age at which the recency component reaches zero.
	MaxRecency = 7 * 24 * time.Hour

	// NeutralComponent is used when a record carries no signal for a component.
	NeutralComponent = 0.3

	WeightThemes     = 0.4
	WeightRecency    = 0.3
	WeightPopularity = 0.3

	perThemeBase = 0.2
)

var pointsPattern = regexp.MustCompile(`(?i)(\d+)\s*points?`)

// Breakdown exposes the final score with its weighted components.
type Breakdown struct {
	Score           float64
	Themes          []string
	ThemeScore      float64
	RecencyScore    float64
	PopularityScore float64
}

// KeywordMatch lists the keywords that caused a theme to match.
type KeywordMatch struct {
	Theme    string
	Keywords []string
}

type compiledTheme struct {
	name     string
	weight   float64
	keywords []string
	original []string
}

// Scorer tags and scores ideas against a fixed theme list.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	themes  []compiledTheme
	weights map[string]float64
	logger  *slog.Logger
}

// NewScorer compiles the theme list. An empty list yields DefaultThemes.
func NewScorer(themes []Theme, logger *slog.Logger) (*Scorer, error) {
	if len(themes) == 0 {
		themes = DefaultThemes()
	}
	if err := ValidateThemes(themes); err != nil {
		return nil, fmt.Errorf("invalid themes: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scorer{
		themes:  make([]compiledTheme, 0, len(themes)),
		weights: make(map[string]float64, len(themes)),
		logger:  logger,
	}
	for _, theme := range themes {
		name := strings.ToLower(strings.TrimSpace(theme.Name))
		ct := compiledTheme{
			name:     name,
			weight:   theme.EffectiveWeight(),
			original: append([]string(nil), theme.Keywords...),
		}
		for _, kw := range theme.Keywords {
			ct.keywords = append(ct.keywords, strings.ToLower(kw))
		}
		s.themes = append(s.themes, ct)
		s.weights[name] = ct.weight
	}
	return s, nil
}

// ThemeNames returns the configured theme names in order.
func (s *Scorer) ThemeNames() []string {
	names := make([]string, len(s.themes))
	for i, theme := range s.themes {
		names[i] = theme.name
	}
	return names
}

// Weight returns the weight of a theme, 1.0 for unknown names.
func (s *Scorer) Weight(theme string) float64 {
	if w, ok := s.weights[theme]; ok {
		return w
	}
	return 1.0
}

// ExtractThemes returns matching theme names in configured order.
func (s *Scorer) ExtractThemes(title, description string) []string {
	text := searchText(title, description)
	matched := []string{}
	for _, theme := range s.themes {
		for _, kw := range theme.keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, theme.name)
				break
			}
		}
	}
	return matched
}

// ExplainThemes is ExtractThemes with the keywords that matched each theme.
func (s *Scorer) ExplainThemes(title, description string) []KeywordMatch {
	text := searchText(title, description)
	var matches []KeywordMatch
	for _, theme := range s.themes {
		var hits []string
		for i, kw := range theme.keywords {
			if strings.Contains(text, kw) {
				hits = append(hits, theme.original[i])
			}
		}
		if len(hits) > 0 {
			matches = append(matches, KeywordMatch{Theme: theme.name, Keywords: hits})
		}
	}
	return matches
}

// ThemeScore is min(0.2*n, 1) times the average weight of the matched themes.
func (s *Scorer) ThemeScore(themes []string) float64 {
	if len(themes) == 0 {
		return 0
	}
	base := math.Min(perThemeBase*float64(len(themes)), 1.0)

	var total float64
	for _, theme := range themes {
		total += s.Weight(theme)
	}
	return clamp(base * total / float64(len(themes)))
}

// RecencyScore decays linearly from 1.0 at now to 0.0 at MaxRecency.
func RecencyScore(sourceDate *time.Time, now time.Time) float64 {
	if sourceDate == nil {
		return NeutralComponent
	}
	age := now.Sub(*sourceDate)
	switch {
	case age <= 0:
		return 1.0
	case age >= MaxRecency:
		return 0.0
	default:
		return 1.0 - float64(age)/float64(MaxRecency)
	}
}

// PopularityScore reads an "N points" count out of the description.
// 100 points maps to 0.5 and 500 or more to 1.0.
func PopularityScore(description string) float64 {
	m := pointsPattern.FindStringSubmatch(description)
	if m == nil {
		return NeutralComponent
	}
	points, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return NeutralComponent
	}
	switch {
	case points <= 0:
		return 0.0
	case points >= 500:
		return 1.0
	case points <= 100:
		return points / 200
	default:
		return 0.5 + (points-100)/800
	}
}

// Breakdown computes the score components for an idea without touching it.
func (s *Scorer) Breakdown(idea domain.Idea, now time.Time) Breakdown {
	themes := s.ExtractThemes(idea.Title, idea.Description)
	b := Breakdown{
		Themes:          themes,
		ThemeScore:      s.ThemeScore(themes),
		RecencyScore:    RecencyScore(idea.SourceDate, now),
		PopularityScore: PopularityScore(idea.Description),
	}
	b.Score = clamp(WeightThemes*b.ThemeScore + WeightRecency*b.RecencyScore + WeightPopularity*b.PopularityScore)
	return b
}

// Score returns a scored copy of idea. The input is never modified.
func (s *Scorer) Score(idea domain.Idea, now time.Time) (domain.Idea, error) {
	b := s.Breakdown(idea, now)
	scored, err := idea.WithScore(b.Score, domain.NewTagSet(b.Themes...), now)
	if err != nil {
		return domain.Idea{}, fmt.Errorf("score %s: %w", idea.ID, err)
	}
	s.logger.Debug("idea scored",
		"id", idea.ID,
		"score", b.Score,
		"themes", b.Themes,
	)
	return scored, nil
}

func searchText(title, description string) string {
	return strings.ToLower(title + " " + description)
}

// clamp keeps v in [0,1]. NaN passes through so validation can reject it.
func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Max(0, math.Min(1, v))
}
