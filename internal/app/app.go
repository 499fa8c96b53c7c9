package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"IdeaDigest/internal/config"
	"IdeaDigest/internal/digest"
	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/infrastructure/pacing"
	"IdeaDigest/internal/infrastructure/parser"
	"IdeaDigest/internal/infrastructure/scheduler"
	"IdeaDigest/internal/infrastructure/storage"
	"IdeaDigest/internal/infrastructure/telegram"
	"IdeaDigest/internal/logging"
	"IdeaDigest/internal/metrics"
	"IdeaDigest/internal/ports"
	"IdeaDigest/internal/scanner"
	"IdeaDigest/internal/scoring"
	"IdeaDigest/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	now    func() time.Time

	registry  *scanner.Registry
	source    *parser.StrategySource
	scorer    *scoring.Scorer
	store     *storage.KeyedStore
	closer    io.Closer
	generator *digest.Generator
	notifier  ports.Notifier
	recorder  *metrics.Recorder

	sourceOpts []parser.Option
}

// Option customises an Application, mostly for tests.
type Option func(*Application)

// WithRegistry replaces the built-in source registry.
func WithRegistry(reg *scanner.Registry) Option {
	return func(a *Application) { a.registry = reg }
}

// WithSourceOptions appends options to every built-in scanner.
func WithSourceOptions(opts ...parser.Option) Option {
	return func(a *Application) { a.sourceOpts = append(a.sourceOpts, opts...) }
}

func WithClock(now func() time.Time) Option {
	return func(a *Application) {
		if now != nil {
			a.now = now
		}
	}
}

// New builds the application: sources, scorer, store, digest generator,
// notifier and metrics.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts ...Option) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format, nil)
	}
	a := &Application{cfg: cfg, logger: baseLogger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}

	if a.registry == nil {
		a.registry = a.defaultRegistry()
	}
	a.source = parser.NewStrategySource(a.registry, cfg.Sources.Enabled, logging.Component(baseLogger, "source"))

	scorer, err := scoring.NewScorer(cfg.Themes(), logging.Component(baseLogger, "scoring"))
	if err != nil {
		return nil, fmt.Errorf("build scorer: %w", err)
	}
	a.scorer = scorer

	backend, closer, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.closer = closer
	a.store = storage.NewKeyedStore(backend, logging.Component(baseLogger, "storage"), a.now)

	renderer := digest.NewRenderer(digest.RenderOptions{IncludeUngrouped: cfg.Digest.IncludeUngrouped})
	a.generator = digest.NewGenerator(a.store, renderer, cfg.Digest.OutputDir, baseLogger)

	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Enabled() {
		a.notifier = tg
	}
	a.recorder = metrics.NewRecorder(cfg.Metrics.Textfile, baseLogger)
	return a, nil
}

func (a *Application) defaultRegistry() *scanner.Registry {
	client := &http.Client{Timeout: a.cfg.Fetch.Timeout}
	common := func(name string, paced bool) []parser.Option {
		opts := []parser.Option{
			parser.WithHTTPClient(client),
			parser.WithLogger(logging.Component(a.logger, "source."+name)),
			parser.WithClock(a.now),
		}
		if paced {
			opts = append(opts, parser.WithPacer(pacing.New(a.cfg.Fetch.ScrapeDelay)))
		}
		return append(opts, a.sourceOpts...)
	}

	// Hacker News is read through its API without the scrape delay.
	registry := scanner.NewRegistry()
	registry.Register(parser.NewHackerNewsScanner(common("hackernews", false)...))
	registry.Register(parser.NewProductHuntScanner(a.cfg.Sources.ProductHunt.Token, common("producthunt", true)...))
	registry.Register(parser.NewGitHubTrendingScanner(a.cfg.Sources.GitHub.Since, a.cfg.Sources.GitHub.Language, common("github", true)...))
	return registry
}

func (a *Application) openBackend(ctx context.Context) (ports.KeyedBackend, io.Closer, error) {
	st := a.cfg.Storage
	switch st.Backend {
	case config.BackendMemory:
		return storage.NewMemoryBackend(), nil, nil
	case config.BackendSQLite:
		b, err := storage.OpenSQLite(ctx, st.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return b, b, nil
	case config.BackendPostgres:
		b, err := storage.OpenPostgres(ctx, st.Postgres.DSN, st.Postgres.Table)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return b, b, nil
	case config.BackendAirtable:
		return storage.NewAirtableBackend(storage.AirtableConfig{
			APIKey:  st.Airtable.APIKey,
			BaseID:  st.Airtable.BaseID,
			Table:   st.Airtable.Table,
			Timeout: a.cfg.Fetch.Timeout,
		}, logging.Component(a.logger, "storage.airtable")), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown backend %q", storage.ErrMisconfigured, st.Backend)
	}
}

// RunRequest carries per-invocation overrides from the CLI.
// Zero values fall back to config.
type RunRequest struct {
	DryRun         bool
	Sources        []string
	LimitPerSource int
	SkipDigest     bool
	DigestLimit    int
	DigestDays     int
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context, req RunRequest) (*usecase.RunResult, error) {
	pipeline, err := a.pipeline(req.Sources)
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, a.runOptions(req)), nil
}

func (a *Application) pipeline(only []string) (*usecase.Pipeline, error) {
	sources, err := a.source.Only(only).Scanners()
	if err != nil {
		return nil, fmt.Errorf("resolve sources: %w", err)
	}
	deps := usecase.PipelineDeps{
		Sources: sources,
		Scorer:  a.scorer,
		Store:   a.store,
		Pruner:  a.store,
		Retention: usecase.RetentionPolicy{
			Enabled:       a.cfg.Storage.AutoPrune,
			MaxRecords:    a.cfg.Storage.MaxRecords,
			RetentionDays: a.cfg.Storage.RetentionDays,
		},
		Digest:   a.generator,
		Notifier: a.notifier,
		Observer: a.recorder,
		Logger:   a.logger,
		Now:      a.now,
	}
	return usecase.NewPipeline(deps), nil
}

func (a *Application) runOptions(req RunRequest) usecase.RunOptions {
	limit := req.LimitPerSource
	if limit <= 0 {
		limit = a.cfg.Fetch.LimitPerSource
	}
	digestReq := a.DigestRequest(time.Time{})
	if req.DigestLimit > 0 {
		digestReq.Limit = req.DigestLimit
	}
	if req.DigestDays > 0 {
		digestReq.Days = req.DigestDays
		if req.DigestLimit <= 0 {
			digestReq.Limit = 0
		}
	}
	return usecase.RunOptions{
		LimitPerSource: limit,
		FetchTimeout:   a.cfg.Fetch.SourceTimeout,
		PlanOnly:       req.DryRun,
		SkipDigest:     req.SkipDigest,
		Digest:         digestReq,
	}
}

// DigestRequest builds the configured selection for date; a zero date means today.
func (a *Application) DigestRequest(date time.Time) domain.DigestRequest {
	if date.IsZero() {
		date = a.now().In(a.cfg.Scheduler.Location())
	}
	return domain.DigestRequest{
		Date:     date,
		Limit:    a.cfg.Digest.Limit,
		Days:     a.cfg.Digest.Days,
		MinScore: a.cfg.Digest.MinScore,
	}
}

// Digest regenerates the digest file from the store.
func (a *Application) Digest(ctx context.Context, req domain.DigestRequest) domain.DigestResult {
	return a.generator.Generate(ctx, req)
}

// RenderDigest returns the digest Markdown without writing it.
func (a *Application) RenderDigest(ctx context.Context, req domain.DigestRequest) (digest.Rendered, error) {
	return a.generator.Render(ctx, req)
}

// Prune applies the retention policy once.
func (a *Application) Prune(ctx context.Context, maxRecords, retentionDays int) (int, error) {
	if maxRecords <= 0 {
		maxRecords = a.cfg.Storage.MaxRecords
	}
	if retentionDays <= 0 {
		retentionDays = a.cfg.Storage.RetentionDays
	}
	return a.store.Prune(ctx, maxRecords, retentionDays)
}

// Scorer exposes the configured scorer for ad-hoc scoring.
func (a *Application) Scorer() *scoring.Scorer {
	return a.scorer
}

func (a *Application) Store() ports.IdeaStore {
	return a.store
}

// Scheduler builds the cron-driven runner for the configured expression.
func (a *Application) Scheduler(req RunRequest) (*usecase.Scheduler, error) {
	driver, err := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression,
		scheduler.WithLocation(a.cfg.Scheduler.Location()),
		scheduler.WithRunOnStart(a.cfg.Scheduler.RunOnStart),
		scheduler.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	pipeline, err := a.pipeline(req.Sources)
	if err != nil {
		return nil, err
	}
	return usecase.NewScheduler(driver, pipeline, a.runOptions(req), a.logger), nil
}

// Close releases the storage connection, if any.
func (a *Application) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
