package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"IdeaDigest/internal/digest"
	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/ports"
	"IdeaDigest/internal/scanner"
)

// Stage is a step of a pipeline run.
type Stage string

const (
	StageInit       Stage = "INIT"
	StageFetching   Stage = "FETCHING"
	StageScoring    Stage = "SCORING"
	StagePersisting Stage = "PERSISTING"
	StageDigesting  Stage = "DIGESTING"
	StageDone       Stage = "DONE"
)

// IdeaScorer scores one idea. *scoring.Scorer satisfies it.
type IdeaScorer interface {
	Score(idea domain.Idea, now time.Time) (domain.Idea, error)
}

// RunObserver receives run telemetry. *metrics.Recorder satisfies it.
type RunObserver interface {
	ObserveSource(result SourceResult)
	ObserveRun(result *RunResult)
}

// RetentionPolicy enables pruning the store before new ideas are written.
type RetentionPolicy struct {
	Enabled       bool
	MaxRecords    int
	RetentionDays int
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Sources   []scanner.Scanner
	Scorer    IdeaScorer
	Store     ports.IdeaStore
	Pruner    ports.Pruner
	Retention RetentionPolicy
	Digest    ports.DigestGenerator
	Notifier  ports.Notifier
	// Announce formats the notifier message; defaults to digest.Announcement.
	Announce func(domain.DigestResult, time.Time) string
	Observer RunObserver
	Logger   *slog.Logger
	Now      func() time.Time
}

// RunOptions tunes a single run.
type RunOptions struct {
	LimitPerSource int
	// FetchTimeout bounds each source; zero means no extra bound.
	FetchTimeout time.Duration
	// PlanOnly fetches and scores without persisting or digesting.
	PlanOnly   bool
	SkipDigest bool
	Digest     domain.DigestRequest
}

// SourceResult describes one source's fetch.
type SourceResult struct {
	SourceName   string
	ItemsFetched int
	Success      bool
	Error        string
	Duration     time.Duration
}

// RunResult summarises a run. It is always returned, never an error.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []Stage
	Sources    []SourceResult

	TotalFetched int
	TotalScored  int
	// ScoringFailures counts ideas kept unscored after a scoring error.
	ScoringFailures int
	Pruned          int
	Ideas           []domain.Idea

	Upsert *domain.UpsertOutcome
	Digest *domain.DigestResult
	Errors []string
}

func (r *RunResult) SourcesSucceeded() int {
	n := 0
	for _, s := range r.Sources {
		if s.Success {
			n++
		}
	}
	return n
}

func (r *RunResult) SourcesFailed() int {
	return len(r.Sources) - r.SourcesSucceeded()
}

// AllSourcesFailed is the condition callers treat as a failed run.
func (r *RunResult) AllSourcesFailed() bool {
	return len(r.Sources) > 0 && r.SourcesSucceeded() == 0
}

// Failed reports whether a caller should exit non-zero.
func (r *RunResult) Failed() bool {
	if r.AllSourcesFailed() || len(r.Errors) > 0 {
		return true
	}
	return r.Upsert != nil && r.Upsert.Failed > 0
}

func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary renders a human readable run report.
func (r *RunResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished in %s\n", r.RunID, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "Sources: %d succeeded, %d failed\n", r.SourcesSucceeded(), r.SourcesFailed())
	for _, s := range r.Sources {
		status := "ok"
		if !s.Success {
			status = "FAILED: " + s.Error
		}
		fmt.Fprintf(&b, "  - %s: %d items in %s (%s)\n", s.SourceName, s.ItemsFetched, s.Duration.Round(time.Millisecond), status)
	}
	fmt.Fprintf(&b, "Fetched: %d, scored: %d", r.TotalFetched, r.TotalScored)
	if r.ScoringFailures > 0 {
		fmt.Fprintf(&b, " (%d unscored)", r.ScoringFailures)
	}
	b.WriteString("\n")
	if r.Pruned > 0 {
		fmt.Fprintf(&b, "Pruned: %d\n", r.Pruned)
	}
	if r.Upsert != nil {
		fmt.Fprintf(&b, "Storage: %s\n", r.Upsert)
	} else {
		b.WriteString("Storage: skipped\n")
	}
	switch {
	case r.Digest == nil:
		b.WriteString("Digest: skipped\n")
	case !r.Digest.Success:
		fmt.Fprintf(&b, "Digest: failed: %s\n", r.Digest.Error)
	case r.Digest.Path == "":
		fmt.Fprintf(&b, "Digest: %s\n", r.Digest.Message)
	default:
		fmt.Fprintf(&b, "Digest: %s (%d items, %d themes)\n", r.Digest.Path, r.Digest.ItemsIncluded, len(r.Digest.ThemesCovered))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "Error: %s\n", e)
	}
	return b.String()
}

// Pipeline implements the ingestion workflow: fetch, score, persist, digest.
type Pipeline struct {
	deps   PipelineDeps
	logger *slog.Logger
	now    func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		deps:   deps,
		logger: logger.With("component", "pipeline"),
		now:    now,
	}
}

// Run executes one pass. Ordinary failures end up in the result.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (result *RunResult) {
	result = &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
		Stages:    []Stage{StageInit},
	}
	log := p.logger.With("run_id", result.RunID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("run panicked", "panic", rec, "stack", string(debug.Stack()))
			result.Errors = append(result.Errors, fmt.Sprintf("panic: %v", rec))
		}
		result.Stages = append(result.Stages, StageDone)
		result.FinishedAt = p.now()
		if p.deps.Observer != nil {
			p.deps.Observer.ObserveRun(result)
		}
		log.Info("run finished",
			"sources_ok", result.SourcesSucceeded(),
			"sources_failed", result.SourcesFailed(),
			"fetched", result.TotalFetched,
			"errors", len(result.Errors),
		)
	}()

	result.Stages = append(result.Stages, StageFetching)
	fetched := p.fetchAll(ctx, opts, result)
	result.TotalFetched = len(fetched)

	result.Stages = append(result.Stages, StageScoring)
	scored := p.scoreAll(fetched, result)
	result.Ideas = scored

	if opts.PlanOnly || len(scored) == 0 {
		log.Info("persistence skipped", "plan_only", opts.PlanOnly, "ideas", len(scored))
		return result
	}
	if p.deps.Store == nil {
		result.Errors = append(result.Errors, "no store configured")
		return result
	}

	result.Stages = append(result.Stages, StagePersisting)
	p.prune(ctx, result)
	outcome, err := p.deps.Store.Upsert(ctx, scored)
	if err != nil {
		log.Error("persistence failed", "store", p.deps.Store.Name(), "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("persist: %v", err))
		return result
	}
	result.Upsert = &outcome

	if opts.SkipDigest || p.deps.Digest == nil {
		return result
	}

	result.Stages = append(result.Stages, StageDigesting)
	req := opts.Digest
	if req.Date.IsZero() {
		req.Date = result.StartedAt
	}
	written := p.deps.Digest.Generate(ctx, req)
	result.Digest = &written
	if written.Success && written.Path != "" {
		p.announce(ctx, written, req.Date)
	}
	return result
}

func (p *Pipeline) fetchAll(ctx context.Context, opts RunOptions, result *RunResult) []domain.Idea {
	var all []domain.Idea
	for _, src := range p.deps.Sources {
		ideas, sr := p.fetchOne(ctx, src, opts)
		result.Sources = append(result.Sources, sr)
		if p.deps.Observer != nil {
			p.deps.Observer.ObserveSource(sr)
		}
		all = append(all, ideas...)
	}
	return all
}

// fetchOne isolates a single source: errors and panics become its failure record.
func (p *Pipeline) fetchOne(ctx context.Context, src scanner.Scanner, opts RunOptions) (ideas []domain.Idea, sr SourceResult) {
	sr.SourceName = src.Name()
	log := p.logger.With("source", sr.SourceName)
	started := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("source panicked", "panic", rec)
			ideas = nil
			sr.Success = false
			sr.ItemsFetched = 0
			sr.Error = fmt.Sprintf("panic: %v", rec)
		}
		sr.Duration = time.Since(started)
	}()

	fetchCtx := ctx
	if opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, opts.FetchTimeout)
		defer cancel()
	}

	ideas, err := src.Fetch(fetchCtx, opts.LimitPerSource)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", opts.FetchTimeout, err)
		}
		log.Warn("source failed", "error", err)
		sr.Error = err.Error()
		return nil, sr
	}

	sr.Success = true
	sr.ItemsFetched = len(ideas)
	log.Info("source fetched", "items", len(ideas))
	return ideas, sr
}

func (p *Pipeline) scoreAll(ideas []domain.Idea, result *RunResult) []domain.Idea {
	if len(ideas) == 0 || p.deps.Scorer == nil {
		return ideas
	}
	now := p.now()
	scored := make([]domain.Idea, 0, len(ideas))
	for _, idea := range ideas {
		out, err := p.scoreOne(idea, now)
		if err != nil {
			p.logger.Warn("scoring failed, keeping unscored idea", "id", idea.ID, "error", err)
			result.ScoringFailures++
			scored = append(scored, idea)
			continue
		}
		result.TotalScored++
		scored = append(scored, out)
	}
	return scored
}

func (p *Pipeline) scoreOne(idea domain.Idea, now time.Time) (out domain.Idea, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.deps.Scorer.Score(idea, now)
}

func (p *Pipeline) prune(ctx context.Context, result *RunResult) {
	policy := p.deps.Retention
	if !policy.Enabled || p.deps.Pruner == nil {
		return
	}
	n, err := p.deps.Pruner.Prune(ctx, policy.MaxRecords, policy.RetentionDays)
	if err != nil {
		p.logger.Warn("auto prune failed", "error", err)
		return
	}
	result.Pruned = n
}

func (p *Pipeline) announce(ctx context.Context, result domain.DigestResult, date time.Time) {
	if p.deps.Notifier == nil {
		return
	}
	format := p.deps.Announce
	if format == nil {
		format = digest.Announcement
	}
	if err := p.deps.Notifier.PublishDigest(ctx, format(result, date)); err != nil {
		p.logger.Warn("digest announcement failed", "error", err)
	}
}
