package digest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/ports"
)

var _ ports.DigestGenerator = (*Generator)(nil)

// Generator reads ideas back from the store and writes one Markdown file per date.
type Generator struct {
	store     ports.IdeaStore
	renderer  *Renderer
	outputDir string
	logger    *slog.Logger
}

func NewGenerator(store ports.IdeaStore, renderer *Renderer, outputDir string, logger *slog.Logger) *Generator {
	if renderer == nil {
		renderer = NewRenderer(RenderOptions{IncludeUngrouped: true})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		store:     store,
		renderer:  renderer,
		outputDir: outputDir,
		logger:    logger.With("component", "digest"),
	}
}

// Path returns the file a digest for date is written to.
func (g *Generator) Path(date time.Time) string {
	return filepath.Join(g.outputDir, date.Format(time.DateOnly)+".md")
}

// Generate never returns an error; failures are reported in the result.
func (g *Generator) Generate(ctx context.Context, req domain.DigestRequest) domain.DigestResult {
	ideas, err := g.Select(ctx, req)
	if err != nil {
		g.logger.Warn("digest read failed", "error", err)
		return domain.DigestResult{Error: err.Error()}
	}
	if len(ideas) == 0 {
		g.logger.Info("no ideas qualify for digest", "date", req.Date.Format(time.DateOnly))
		return domain.DigestResult{Success: true, Message: "no items found"}
	}

	out := g.renderer.Render(ideas, req.Date)
	path := g.Path(req.Date)
	if err := writeAtomic(path, []byte(out.Markdown)); err != nil {
		g.logger.Warn("digest write failed", "path", path, "error", err)
		return domain.DigestResult{Error: err.Error(), ItemsIncluded: out.Items, ThemesCovered: out.Themes}
	}

	g.logger.Info("digest written", "path", path, "items", out.Items, "themes", len(out.Themes))
	return domain.DigestResult{
		Success:       true,
		Path:          path,
		ItemsIncluded: out.Items,
		ThemesCovered: out.Themes,
	}
}

// Select fetches the ideas a request covers: the top Limit ideas when Limit is
// positive, otherwise those from the last Days, filtered by MinScore.
func (g *Generator) Select(ctx context.Context, req domain.DigestRequest) ([]domain.Idea, error) {
	if req.Limit > 0 {
		ideas, err := g.store.Top(ctx, req.Limit, req.MinScore)
		if err != nil {
			return nil, fmt.Errorf("load top ideas: %w", err)
		}
		return ideas, nil
	}

	recent, err := g.store.Recent(ctx, req.Days)
	if err != nil {
		return nil, fmt.Errorf("load recent ideas: %w", err)
	}
	ideas := recent[:0:0]
	for _, idea := range recent {
		if idea.Score >= req.MinScore {
			ideas = append(ideas, idea)
		}
	}
	return ideas, nil
}

// Render returns the Markdown for a request without writing it.
func (g *Generator) Render(ctx context.Context, req domain.DigestRequest) (Rendered, error) {
	ideas, err := g.Select(ctx, req)
	if err != nil {
		return Rendered{}, err
	}
	return g.renderer.Render(ideas, req.Date), nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".digest-*.md")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write digest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close digest: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod digest: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Announcement is the short chat message sent after a digest is written.
func Announcement(result domain.DigestResult, date time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Idea Digest %s*\n", date.Format(time.DateOnly))
	fmt.Fprintf(&b, "%d items", result.ItemsIncluded)
	if len(result.ThemesCovered) > 0 {
		fmt.Fprintf(&b, " across %d themes: %s", len(result.ThemesCovered), strings.Join(result.ThemesCovered, ", "))
	}
	b.WriteString("\n")
	if result.Path != "" {
		fmt.Fprintf(&b, "Saved to `%s`", filepath.Base(result.Path))
	}
	return strings.TrimRight(b.String(), "\n")
}
