package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Idea is a candidate item discovered by a source. It flows through scoring,
// storage and the digest unchanged in shape.
type Idea struct {
	// ID is namespaced by the producing source, e.g. "hn_12345". It is the dedup key.
	ID          string
	Title       string
	Description string
	URL         string
	SourceName  string
	SourceDate  *time.Time
	Score       float64
	Tags        TagSet
	Engagement  Engagement
	Maker       Maker
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Engagement carries native per-platform signals for display only.
type Engagement struct {
	Points     *int   `json:"points,omitempty"`
	Comments   *int   `json:"comments,omitempty"`
	Votes      *int   `json:"votes,omitempty"`
	Stars      *int   `json:"stars,omitempty"`
	StarsToday *int   `json:"stars_today,omitempty"`
	Forks      *int   `json:"forks,omitempty"`
	Language   string `json:"language,omitempty"`
}

// Maker describes the creator of an idea when the platform exposes one.
type Maker struct {
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	URL      string `json:"url,omitempty"`
}

// NewIdea normalises a freshly fetched idea: it trims the title, stamps
// missing timestamps with now and validates the result. Score and tags are
// reset, scoring happens later.
func NewIdea(idea Idea, now time.Time) (Idea, error) {
	idea.Title = strings.TrimSpace(idea.Title)
	idea.URL = strings.TrimSpace(idea.URL)
	idea.Score = 0
	idea.Tags = TagSet{}
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = now
	}
	if idea.UpdatedAt.IsZero() {
		idea.UpdatedAt = now
	}
	if err := idea.Validate(); err != nil {
		return Idea{}, err
	}
	return idea, nil
}

// Validate checks the record invariants.
func (i Idea) Validate() error {
	var problems []error

	if strings.TrimSpace(i.ID) == "" {
		problems = append(problems, errors.New("id is required"))
	}
	if strings.TrimSpace(i.Title) == "" {
		problems = append(problems, errors.New("title is required"))
	}
	if strings.TrimSpace(i.SourceName) == "" {
		problems = append(problems, errors.New("source name is required"))
	}
	switch {
	case strings.TrimSpace(i.URL) == "":
		problems = append(problems, errors.New("url is required"))
	case !strings.HasPrefix(i.URL, "http://") && !strings.HasPrefix(i.URL, "https://"):
		problems = append(problems, fmt.Errorf("url must start with http:// or https://, got %q", i.URL))
	}
	if err := checkScore(i.Score); err != nil {
		problems = append(problems, err)
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidIdea, errors.Join(problems...))
}

// WithScore returns a scored copy. The receiver is left untouched.
func (i Idea) WithScore(score float64, tags TagSet, at time.Time) (Idea, error) {
	if err := checkScore(score); err != nil {
		return Idea{}, fmt.Errorf("idea %s: %w", i.ID, err)
	}

	scored := i.Clone()
	scored.Score = score
	scored.Tags = tags.Clone()
	scored.UpdatedAt = at
	return scored, nil
}

// Clone returns a deep copy, pointers included.
func (i Idea) Clone() Idea {
	c := i
	c.Tags = i.Tags.Clone()
	if i.SourceDate != nil {
		d := *i.SourceDate
		c.SourceDate = &d
	}
	c.Engagement = i.Engagement.clone()
	return c
}

// String renders a short human-readable label.
func (i Idea) String() string {
	return fmt.Sprintf("[%s] %s (score: %.2f)", i.SourceName, i.Title, i.Score)
}

func (e Engagement) clone() Engagement {
	return Engagement{
		Points:     copyInt(e.Points),
		Comments:   copyInt(e.Comments),
		Votes:      copyInt(e.Votes),
		Stars:      copyInt(e.Stars),
		StarsToday: copyInt(e.StarsToday),
		Forks:      copyInt(e.Forks),
		Language:   e.Language,
	}
}

// IsZero reports whether no engagement signal is present.
func (e Engagement) IsZero() bool {
	return e.Points == nil && e.Comments == nil && e.Votes == nil &&
		e.Stars == nil && e.StarsToday == nil && e.Forks == nil && e.Language == ""
}

// IntPtr is a helper for optional engagement fields.
func IntPtr(v int) *int {
	return &v
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func checkScore(score float64) error {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return fmt.Errorf("%w: got %v", ErrScoreOutOfRange, score)
	}
	return nil
}
