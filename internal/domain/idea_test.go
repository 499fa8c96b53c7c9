package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)

func validIdea() Idea {
	posted := fixedNow.Add(-2 * time.Hour)
	return Idea{
		ID:          "hn_1",
		Title:       "Show HN: a tiny database",
		Description: "by alice | 120 points",
		URL:         "https://example.com/db",
		SourceName:  "hackernews",
		SourceDate:  &posted,
		Engagement:  Engagement{Points: IntPtr(120)},
		CreatedAt:   fixedNow,
		UpdatedAt:   fixedNow,
	}
}

func TestIdeaValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Idea)
		want   error
	}{
		{name: "valid", mutate: func(*Idea) {}},
		{name: "empty title", mutate: func(i *Idea) { i.Title = "  " }, want: ErrInvalidIdea},
		{name: "empty source", mutate: func(i *Idea) { i.SourceName = "" }, want: ErrInvalidIdea},
		{name: "empty url", mutate: func(i *Idea) { i.URL = "" }, want: ErrInvalidIdea},
		{name: "non http url", mutate: func(i *Idea) { i.URL = "ftp://example.com" }, want: ErrInvalidIdea},
		{name: "score above range", mutate: func(i *Idea) { i.Score = 1.01 }, want: ErrScoreOutOfRange},
		{name: "negative score", mutate: func(i *Idea) { i.Score = -0.1 }, want: ErrScoreOutOfRange},
		{name: "nan score", mutate: func(i *Idea) { i.Score = math.NaN() }, want: ErrScoreOutOfRange},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			idea := validIdea()
			tt.mutate(&idea)

			err := idea.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "expected %v, got %v", tt.want, err)
			assert.True(t, errors.Is(err, ErrInvalidIdea))
		})
	}
}

func TestNewIdeaResetsScoringFields(t *testing.T) {
	t.Parallel()

	raw := validIdea()
	raw.Title = "  padded title  "
	raw.Score = 0.8
	raw.Tags = NewTagSet("ai-ml")
	raw.CreatedAt = time.Time{}
	raw.UpdatedAt = time.Time{}

	idea, err := NewIdea(raw, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "padded title", idea.Title)
	assert.Zero(t, idea.Score)
	assert.True(t, idea.Tags.IsEmpty())
	assert.Equal(t, fixedNow, idea.CreatedAt)
	assert.Equal(t, fixedNow, idea.UpdatedAt)
}

func TestNewIdeaRejectsInvalid(t *testing.T) {
	t.Parallel()

	raw := validIdea()
	raw.URL = "example.com"

	_, err := NewIdea(raw, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidIdea)
}

func TestWithScoreLeavesReceiverUntouched(t *testing.T) {
	t.Parallel()

	original := validIdea()
	snapshot := original.Clone()
	later := fixedNow.Add(time.Minute)

	scored, err := original.WithScore(0.75, NewTagSet("data", "startup"), later)
	require.NoError(t, err)

	if diff := cmp.Diff(snapshot, original, cmp.AllowUnexported(TagSet{})); diff != "" {
		t.Fatalf("original changed (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0.75, scored.Score)
	assert.Equal(t, []string{"data", "startup"}, scored.Tags.Names())
	assert.Equal(t, later, scored.UpdatedAt)

	*scored.SourceDate = time.Time{}
	*scored.Engagement.Points = 1
	assert.Equal(t, fixedNow.Add(-2*time.Hour), *original.SourceDate)
	assert.Equal(t, 120, *original.Engagement.Points)
}

func TestWithScoreRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	_, err := validIdea().WithScore(1.5, TagSet{}, fixedNow)
	assert.ErrorIs(t, err, ErrScoreOutOfRange)
}

func TestTimestampRoundTrip(t *testing.T) {
	t.Parallel()

	in := time.Date(2025, time.January, 2, 3, 4, 5, 600, time.FixedZone("X", 3600))
	out, err := ParseTimestamp(FormatTimestamp(in))
	require.NoError(t, err)
	assert.True(t, in.Equal(out))

	day, err := ParseTimestamp("2025-01-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC), day)

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestTimestampOrderingIsLexicographic(t *testing.T) {
	t.Parallel()

	early := FormatTimestamp(time.Date(2025, 1, 1, 0, 0, 0, 900000000, time.UTC))
	late := FormatTimestamp(time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC))
	assert.Less(t, early, late)
}

func TestUpsertOutcome(t *testing.T) {
	t.Parallel()

	var out UpsertOutcome
	out.Inserted = 2
	out.Updated = 1
	out.RecordFailure("hn_9", errors.New("boom"))

	assert.Equal(t, 4, out.Submitted())
	assert.Equal(t, 3, out.Processed())
	assert.Equal(t, []string{"hn_9: boom"}, out.Errors)
	assert.Equal(t, "inserted=2 updated=1 failed=1", out.String())
}
