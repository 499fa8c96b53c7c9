package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IdeaDigest/internal/digest"
	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/infrastructure/storage"
	"IdeaDigest/internal/scoring"
	"IdeaDigest/internal/scanner"
)

var runNow = time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return runNow }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubScanner struct {
	name  string
	ideas []domain.Idea
	err   error
	panic bool
	calls int
}

func (s *stubScanner) Name() string { return s.name }

func (s *stubScanner) Fetch(_ context.Context, limit int) ([]domain.Idea, error) {
	s.calls++
	if s.panic {
		panic("parser exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && len(s.ideas) > limit {
		return s.ideas[:limit], nil
	}
	return s.ideas, nil
}

type blockingScanner struct{}

func (blockingScanner) Name() string { return "slow" }

func (blockingScanner) Fetch(ctx context.Context, _ int) ([]domain.Idea, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingStore struct {
	batches [][]domain.Idea
	err     error
}

func (r *recordingStore) Name() string { return "recording" }

func (r *recordingStore) Upsert(_ context.Context, ideas []domain.Idea) (domain.UpsertOutcome, error) {
	if r.err != nil {
		return domain.UpsertOutcome{}, r.err
	}
	r.batches = append(r.batches, ideas)
	return domain.UpsertOutcome{Inserted: len(ideas)}, nil
}

func (r *recordingStore) Recent(context.Context, int) ([]domain.Idea, error) { return nil, nil }

func (r *recordingStore) Top(context.Context, int, float64) ([]domain.Idea, error) { return nil, nil }

func (r *recordingStore) Get(context.Context, string) (domain.Idea, error) {
	return domain.Idea{}, domain.ErrNotFound
}

type stubDigest struct {
	calls  int
	req    domain.DigestRequest
	result domain.DigestResult
}

func (s *stubDigest) Generate(_ context.Context, req domain.DigestRequest) domain.DigestResult {
	s.calls++
	s.req = req
	return s.result
}

type stubNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *stubNotifier) PublishDigest(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.err
}

type failingScorer struct {
	failID string
	inner  IdeaScorer
}

func (f failingScorer) Score(idea domain.Idea, now time.Time) (domain.Idea, error) {
	if idea.ID == f.failID {
		return domain.Idea{}, errors.New("bad input")
	}
	return f.inner.Score(idea, now)
}

type panickyScorer struct{}

func (panickyScorer) Score(domain.Idea, time.Time) (domain.Idea, error) { panic("nil theme") }

type countingObserver struct {
	sources []SourceResult
	runs    int
}

func (c *countingObserver) ObserveSource(r SourceResult) { c.sources = append(c.sources, r) }
func (c *countingObserver) ObserveRun(*RunResult) { c.runs++ }

func rawIdea(source, id, title, description string) domain.Idea {
	date := runNow.Add(-2 * time.Hour)
	return domain.Idea{
		ID:          source + "_" + id,
		Title:       title,
		Description: description,
		URL:         "https://example.test/" + id,
		SourceName:  source,
		SourceDate:  &date,
		CreatedAt:   runNow,
		UpdatedAt:   runNow,
	}
}

func newScorer(t *testing.T) *scoring.Scorer {
	t.Helper()
	s, err := scoring.NewScorer(nil, quietLogger())
	require.NoError(t, err)
	return s
}

func TestRunIsolatesSourceFailures(t *testing.T) {
	hn := &stubScanner{name: "hackernews", ideas: []domain.Idea{
		rawIdea("hn", "1", "New LLM release", "by a | 300 points | 10 comments"),
		rawIdea("hn", "2", "Gardening tips", ""),
	}}
	broken := &stubScanner{name: "producthunt", panic: true}
	down := &stubScanner{name: "github", err: errors.New("status 503")}
	store := &recordingStore{}
	observer := &countingObserver{}

	p := NewPipeline(PipelineDeps{
		Sources:  []scanner.Scanner{broken, hn, down},
		Scorer:   newScorer(t),
		Store:    store,
		Observer: observer,
		Logger:   quietLogger(),
		Now:      fixedNow,
	})
	res := p.Run(context.Background(), RunOptions{LimitPerSource: 10, SkipDigest: true})

	require.Len(t, res.Sources, 3)
	assert.Equal(t, "producthunt", res.Sources[0].SourceName)
	assert.False(t, res.Sources[0].Success)
	assert.Contains(t, res.Sources[0].Error, "parser exploded")
	assert.True(t, res.Sources[1].Success)
	assert.Equal(t, 2, res.Sources[1].ItemsFetched)
	assert.Equal(t, "status 503", res.Sources[2].Error)

	assert.Equal(t, 1, res.SourcesSucceeded())
	assert.Equal(t, 2, res.SourcesFailed())
	assert.False(t, res.AllSourcesFailed())
	assert.False(t, res.Failed())
	assert.Empty(t, res.Errors)

	require.Len(t, store.batches, 1)
	batch := store.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "hn_1", batch[0].ID)
	assert.True(t, batch[0].Tags.Contains("ai-ml"))
	assert.Greater(t, batch[0].Score, batch[1].Score)

	assert.Equal(t, []Stage{StageInit, StageFetching, StageScoring, StagePersisting, StageDone}, res.Stages)
	assert.Len(t, observer.sources, 3)
	assert.Equal(t, 1, observer.runs)
	assert.Contains(t, res.Summary(), "Sources: 1 succeeded, 2 failed")
}

func TestRunOneRaisingSourceAmongThree(t *testing.T) {
	hn := &stubScanner{name: "hackernews", ideas: []domain.Idea{
		rawIdea("hn", "1", "Rust compiler tricks", ""),
		rawIdea("hn", "2", "Startup funding round", ""),
		rawIdea("hn", "3", "Zero trust security", ""),
	}}
	broken := &stubScanner{name: "producthunt", panic: true}
	gh := &stubScanner{name: "github", ideas: []domain.Idea{
		rawIdea("gh", "a", "kube-operator", ""),
		rawIdea("gh", "b", "llm-router", ""),
	}}
	store := &recordingStore{}

	p := NewPipeline(PipelineDeps{
		Sources: []scanner.Scanner{hn, broken, gh},
		Scorer:  newScorer(t),
		Store:   store,
		Logger:  quietLogger(),
		Now:     fixedNow,
	})
	res := p.Run(context.Background(), RunOptions{LimitPerSource: 10, SkipDigest: true})

	assert.Equal(t, 2, res.SourcesSucceeded())
	assert.Equal(t, 1, res.SourcesFailed())
	assert.Equal(t, 1, gh.calls)
	assert.Equal(t, res.Sources[0].ItemsFetched+res.Sources[2].ItemsFetched, res.TotalFetched)
	assert.Equal(t, 5, res.TotalFetched)
	assert.Zero(t, res.Sources[1].ItemsFetched)
	assert.Equal(t, 5, res.TotalScored)

	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 5)
	assert.False(t, res.Failed())
}

func TestRunAllSourcesFailedSkipsPersistence(t *testing.T) {
	store := &recordingStore{}
	p := NewPipeline(PipelineDeps{
		Sources: []scanner.Scanner{&stubScanner{name: "a", err: errors.New("x")}, &stubScanner{name: "b", err: errors.New("y")}},
		Scorer:  newScorer(t),
		Store:   store,
		Logger:  quietLogger(),
		Now:     fixedNow,
	})
	res := p.Run(context.Background(), RunOptions{})

	assert.True(t, res.AllSourcesFailed())
	assert.True(t, res.Failed())
	assert.Empty(t, store.batches)
	assert.Nil(t, res.Upsert)
	assert.Equal(t, []Stage{StageInit, StageFetching, StageScoring, StageDone}, res.Stages)
}

func TestRunPlanOnlyScoresWithoutPersisting(t *testing.T) {
	store := &recordingStore{}
	dg := &stubDigest{}
	p := NewPipeline(PipelineDeps{
		Sources: []scanner.Scanner{&stubScanner{name: "hackernews", ideas: []domain.Idea{rawIdea("hn", "1", "Startup funding", "")}}},
		Scorer:  newScorer(t),
		Store:   store,
		Digest:  dg,
		Logger:  quietLogger(),
		Now:     fixedNow,
	})
	res := p.Run(context.Background(), RunOptions{PlanOnly: true})

	assert.Empty(t, store.batches)
	assert.Zero(t, dg.calls)
	require.Len(t, res.Ideas, 1)
	assert.True(t, res.Ideas[0].Tags.Contains("startup"))
	assert.Equal(t, 1, res.TotalScored)
	assert.Contains(t, res.Summary(), "Storage: skipped")
}

func TestRunKeepsUnscoredIdeaOnScoringFailure(t *testing.T) {
	store := &recordingStore{}
	ideas := []domain.Idea{rawIdea("hn", "1", "Rust compiler", ""), rawIdea("hn", "2", "Python tools", "")}
	p := NewPipeline(PipelineDeps{
		Sources: []scanner.Scanner{&stubScanner{name: "hackernews", ideas: ideas}},
		Scorer:  failingScorer{failID: "hn_1", inner: newScorer(t)},
		Store:   store,
		Logger:  quietLogger(),
		Now:     fixedNow,
	})
	res := p.Run(context.Background(), RunOptions{SkipDigest: true})

	assert.Equal(t, 1, res.ScoringFailures)
	assert.Equal(t, 1, res.TotalScored)
	require.Len(t, store.batches, 1)
	require.Len(t, store.batches[0], 2)
	assert.Zero(t, store.batches[0][0].Score)
	assert.True(t, store.batches[0][0].Tags.IsEmpty())
	assert.Positive(t, store.batches[0][1].Score)
}

func TestRunRecoversScorerPanicPerIdea(t *testing.T) {
	store := &recordingStore{}
	p := NewPipeline(PipelineDeps{
		Sources: []scanner.Scanner{&stubScanner{name: "hackernews", ideas: []domain.Idea{rawIdea("hn", "1", "A", "")}}},
		Scorer:  panickyScorer{},
		Store:   store,
		Logger:  quietLogger(),
		Now:     fixedNow,
	})
	res := p.Run(context.Background(), RunOptions{SkipDigest: true})

	assert.Equal(t, 1, res.ScoringFailures)
	assert.Empty(t, res.Errors)
	require.Len(t, store.batches, 1)
}

func TestRunReportsMisconfiguredStore(t *testing.T) {
	dg := &stubDigest{}
	p := NewPipeline(PipelineDeps{
		Sources: []scanner.Scanner{&stubScanner{name: "hackernews", ideas: []domain.Idea{rawIdea("hn", "1", "A", "")}}},
		Scorer:  newScorer(t),
		Store:   &recordingStore{err: storage.ErrMisconfigured},
		Digest:  dg,
		Logger:  quietLogger(),
		Now:     fixedNow,
	})
	res := p.Run(context.Background(), RunOptions{})

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "misconfigured")
	assert.True(t, res.Failed())
	assert.Zero(t, dg.calls)
	assert.Equal(t, StageDone, res.Stages[len(res.Stages)-1])
}

func TestRunRecoversRunLevelPanic(t *testing.T) {
	p := NewPipeline(PipelineDeps{
		Sources:  []scanner.Scanner{&stubScanner{name: "hackernews", ideas: []domain.Idea{rawIdea("hn", "1", "A", "")}}},
		Scorer:   newScorer(t),
		Store:    &recordingStore{},
		Digest:   &stubDigest{result: domain.DigestResult{Success: true, Path: "/x/2025-07-01.md"}},
		Notifier: &stubNotifier{},
		Announce: func(domain.DigestResult, time.Time) string { panic("template broke") },
		Logger:   quietLogger(),
		Now:      fixedNow,
	})
	res := p.Run(context.Background(), RunOptions{})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "panic: template broke", res.Errors[0])
	assert.Equal(t, StageDone, res.Stages[len(res.Stages)-1])
}

func TestRunTimesOutSlowSource(t *testing.T) {
	fast := &stubScanner{name: "fast", ideas: []domain.Idea{rawIdea("f", "1", "A", "")}}
	p := NewPipeline(PipelineDeps{
		Sources: []scanner.Scanner{blockingScanner{}, fast},
		Scorer:  newScorer(t),
		Logger:  quietLogger(),
		Now:     fixedNow,
	})
	res := p.Run(context.Background(), RunOptions{FetchTimeout: 20 * time.Millisecond, PlanOnly: true})

	require.Len(t, res.Sources, 2)
	assert.False(t, res.Sources[0].Success)
	assert.Contains(t, res.Sources[0].Error, "timed out")
	assert.True(t, res.Sources[1].Success)
	assert.Equal(t, 1, res.TotalFetched)
}

func TestRunDigestsAndAnnounces(t *testing.T) {
	dg := &stubDigest{result: domain.DigestResult{Success: true, Path: "/out/2025-07-01.md", ItemsIncluded: 1, ThemesCovered: []string{"ai-ml"}}}
	notifier := &stubNotifier{}
	p := NewPipeline(PipelineDeps{
		Sources:  []scanner.Scanner{&stubScanner{name: "hackernews", ideas: []domain.Idea{rawIdea("hn", "1", "AI", "")}}},
		Scorer:   newScorer(t),
		Store:    &recordingStore{},
		Digest:   dg,
		Notifier: notifier,
		Logger:   quietLogger(),
		Now:      fixedNow,
	})
	res := p.Run(context.Background(), RunOptions{Digest: domain.DigestRequest{Limit: 50}})

	assert.Equal(t, []Stage{StageInit, StageFetching, StageScoring, StagePersisting, StageDigesting, StageDone}, res.Stages)
	require.Equal(t, 1, dg.calls)
	assert.Equal(t, runNow, dg.req.Date)
	assert.Equal(t, 50, dg.req.Limit)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "1 items across 1 themes: ai-ml")
}

func TestRunSkipsAnnouncementForEmptyDigest(t *testing.T) {
	notifier := &stubNotifier{}
	p := NewPipeline(PipelineDeps{
		Sources:  []scanner.Scanner{&stubScanner{name: "hackernews", ideas: []domain.Idea{rawIdea("hn", "1", "AI", "")}}},
		Scorer:   newScorer(t),
		Store:    &recordingStore{},
		Digest:   &stubDigest{result: domain.DigestResult{Success: true, Message: "no items found"}},
		Notifier: notifier,
		Logger:   quietLogger(),
		Now:      fixedNow,
	})
	res := p.Run(context.Background(), RunOptions{})

	assert.Empty(t, notifier.messages)
	assert.Contains(t, res.Summary(), "Digest: no items found")
}

func TestRunEndToEndIsIdempotent(t *testing.T) {
	backend := storage.NewMemoryBackend()
	store := storage.NewKeyedStore(backend, quietLogger(), fixedNow)
	dir := t.TempDir()
	gen := digest.NewGenerator(store, digest.NewRenderer(digest.RenderOptions{IncludeUngrouped: true}), dir, quietLogger())
	src := &stubScanner{name: "hackernews", ideas: []domain.Idea{
		rawIdea("hn", "1", "Open source security scanner", "by a | 120 points | 4 comments"),
		rawIdea("hn", "2", "Weekend baking", ""),
	}}
	p := NewPipeline(PipelineDeps{
		Sources:   []scanner.Scanner{src},
		Scorer:    newScorer(t),
		Store:     store,
		Pruner:    store,
		Retention: RetentionPolicy{Enabled: true, MaxRecords: 1000, RetentionDays: 30},
		Digest:    gen,
		Logger:    quietLogger(),
		Now:       fixedNow,
	})
	opts := RunOptions{Digest: domain.DigestRequest{Limit: 10}}

	first := p.Run(context.Background(), opts)
	second := p.Run(context.Background(), opts)

	require.NotNil(t, first.Upsert)
	require.NotNil(t, second.Upsert)
	assert.Equal(t, 2, first.Upsert.Inserted)
	assert.Equal(t, 2, second.Upsert.Updated)
	assert.Zero(t, second.Upsert.Inserted)
	assert.NotEqual(t, first.RunID, second.RunID)

	require.NotNil(t, second.Digest)
	require.True(t, second.Digest.Success, second.Digest.Error)
	assert.Equal(t, 2, second.Digest.ItemsIncluded)
	data, err := os.ReadFile(second.Digest.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Idea Digest - 2025-07-01")
	assert.Contains(t, string(data), "## 📁 Other Items")
}
