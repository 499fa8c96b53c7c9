package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IdeaDigest/internal/config"
	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/infrastructure/parser"
	"IdeaDigest/internal/scanner"
)

var appNow = time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)

type fixedScanner struct {
	name  string
	ideas []domain.Idea
	err   error
}

func (f fixedScanner) Name() string { return f.name }

func (f fixedScanner) Fetch(context.Context, int) ([]domain.Idea, error) {
	return f.ideas, f.err
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendMemory
	cfg.Digest.OutputDir = filepath.Join(t.TempDir(), "digests")
	cfg.Sources.Enabled = []string{"hackernews", "github"}
	return cfg
}

func testRegistry() *scanner.Registry {
	date := appNow.Add(-time.Hour)
	reg := scanner.NewRegistry()
	reg.Register(fixedScanner{name: "hackernews", ideas: []domain.Idea{{
		ID:          "hn_1",
		Title:       "Kubernetes operator in Rust",
		Description: "by dev | 250 points | 40 comments",
		URL:         "https://example.test/1",
		SourceName:  "hackernews",
		SourceDate:  &date,
	}}})
	reg.Register(fixedScanner{name: "github", err: errors.New("rate limited")})
	return reg
}

func newTestApp(t *testing.T, cfg config.Config) *Application {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, logger, WithRegistry(testRegistry()), WithClock(func() time.Time { return appNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRunWritesDigest(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	res, err := a.Run(context.Background(), RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.SourcesSucceeded())
	assert.Equal(t, 1, res.SourcesFailed())
	require.NotNil(t, res.Upsert)
	assert.Equal(t, 1, res.Upsert.Inserted)
	require.NotNil(t, res.Digest)
	require.True(t, res.Digest.Success, res.Digest.Error)
	assert.Equal(t, filepath.Join(cfg.Digest.OutputDir, "2025-07-01.md"), res.Digest.Path)

	data, err := os.ReadFile(res.Digest.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[Kubernetes operator in Rust](https://example.test/1)")

	stored, err := a.Store().Get(context.Background(), "hn_1")
	require.NoError(t, err)
	assert.Positive(t, stored.Score)
}

func TestRunHonoursSourceSelectionAndDryRun(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	res, err := a.Run(context.Background(), RunRequest{DryRun: true, Sources: []string{"github"}})
	require.NoError(t, err)

	require.Len(t, res.Sources, 1)
	assert.True(t, res.AllSourcesFailed())
	assert.Nil(t, res.Upsert)

	_, err = a.Run(context.Background(), RunRequest{Sources: []string{"reddit"}})
	assert.ErrorContains(t, err, "reddit")
}

func TestRunOptionsPreferRequestOverrides(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	opts := a.runOptions(RunRequest{LimitPerSource: 5, DigestDays: 7})
	assert.Equal(t, 5, opts.LimitPerSource)
	assert.Equal(t, 7, opts.Digest.Days)
	assert.Zero(t, opts.Digest.Limit)
	assert.Equal(t, appNow, opts.Digest.Date)

	opts = a.runOptions(RunRequest{})
	assert.Equal(t, 20, opts.LimitPerSource)
	assert.Equal(t, 50, opts.Digest.Limit)
}

func TestPruneUsesConfiguredDefaults(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	n, err := a.Prune(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "cassandra"
	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "cassandra")
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.CronExpression = "never"
	a := newTestApp(t, cfg)
	_, err := a.Scheduler(RunRequest{})
	assert.Error(t, err)
}

func newStoriesServer(t *testing.T, stories int) *httptest.Server {
	t.Helper()
	posted := appNow.Add(-time.Hour).Unix()

	mux := http.NewServeMux()
	mux.HandleFunc("/topstories.json", func(w http.ResponseWriter, r *http.Request) {
		ids := make([]int, stories)
		for i := range ids {
			ids[i] = i + 1
		}
		assert.NoError(t, json.NewEncoder(w).Encode(ids))
	})
	mux.HandleFunc("/item/", func(w http.ResponseWriter, r *http.Request) {
		var id int
		if _, err := fmt.Sscanf(r.URL.Path, "/item/%d.json", &id); err != nil {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"id":%d,"type":"story","title":"Story %d","url":"https://news.example/%d","by":"dev","time":%d,"score":%d}`,
			id, id, id, posted, 10*id)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDefaultRegistryFetchesFullHackerNewsLimit(t *testing.T) {
	srv := newStoriesServer(t, 30)

	cfg := testConfig(t)
	cfg.Sources.Enabled = []string{"hackernews"}
	cfg.Fetch.ScrapeDelay = 2 * time.Second
	cfg.Fetch.SourceTimeout = 3 * time.Second

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, logger,
		WithSourceOptions(parser.WithBaseURL(srv.URL)),
		WithClock(func() time.Time { return appNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	res, err := a.Run(context.Background(), RunRequest{SkipDigest: true})
	require.NoError(t, err)

	require.Len(t, res.Sources, 1)
	src := res.Sources[0]
	assert.True(t, src.Success, src.Error)
	assert.Equal(t, 20, src.ItemsFetched)
	assert.Equal(t, 20, res.TotalFetched)
	require.NotNil(t, res.Upsert)
	assert.Equal(t, 20, res.Upsert.Inserted)
}

func TestRunOptionsKeepRequestTimeoutOffSourceBound(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)
	assert.Zero(t, a.runOptions(RunRequest{}).FetchTimeout)

	cfg.Fetch.SourceTimeout = 90 * time.Second
	a = newTestApp(t, cfg)
	assert.Equal(t, 90*time.Second, a.runOptions(RunRequest{}).FetchTimeout)
}
