package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/scanner"
)

const (
	hackerNewsAPI        = "https://hacker-news.firebaseio.com/v0"
	hackerNewsDiscussion = "https://news.ycombinator.com/item?id=%d"
)

// HackerNewsScanner reads top stories through the Firebase API.
type HackerNewsScanner struct {
	opts options
}

var _ scanner.Scanner = (*HackerNewsScanner)(nil)

// NewHackerNewsScanner builds the scanner; the API base can be overridden with WithBaseURL.
func NewHackerNewsScanner(opts ...Option) *HackerNewsScanner {
	return &HackerNewsScanner{opts: buildOptions(hackerNewsAPI, opts)}
}

// Name identifies the strategy inside the registry.
func (h *HackerNewsScanner) Name() string {
	return "hackernews"
}

type hnItem struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Deleted     bool   `json:"deleted"`
	Dead        bool   `json:"dead"`
}

// Fetch loads the top story ids and then each story. Stories that fail to
// load or normalise are skipped; a failed id listing or an exhausted
// context fails the source.
func (h *HackerNewsScanner) Fetch(ctx context.Context, limit int) ([]domain.Idea, error) {
	if limit <= 0 {
		return nil, nil
	}

	var ids []int64
	if err := h.opts.getJSON(ctx, h.opts.baseURL+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("top stories: %w", err)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	log := h.opts.logger
	ideas := make([]domain.Idea, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch stories: %w", err)
		}

		var item *hnItem
		if err := h.opts.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", h.opts.baseURL, id), &item); err != nil {
			if errors.Is(err, errPacing) || ctx.Err() != nil {
				return nil, fmt.Errorf("fetch stories: %w", err)
			}
			log.Warn("skip story", "id", id, "error", err)
			continue
		}
		if item == nil {
			log.Debug("skip missing story", "id", id)
			continue
		}

		idea, err := h.normalize(*item)
		if err != nil {
			log.Warn("skip story", "id", id, "error", err)
			continue
		}
		ideas = append(ideas, idea)
	}

	log.Info("fetched stories", "count", len(ideas), "requested", limit)
	return ideas, nil
}

func (h *HackerNewsScanner) normalize(item hnItem) (domain.Idea, error) {
	if item.Deleted || item.Dead {
		return domain.Idea{}, fmt.Errorf("story %d is deleted", item.ID)
	}

	link := strings.TrimSpace(item.URL)
	if link == "" {
		link = fmt.Sprintf(hackerNewsDiscussion, item.ID)
	}

	idea := domain.Idea{
		ID:          fmt.Sprintf("hn_%d", item.ID),
		Title:       item.Title,
		Description: hnDescription(item),
		URL:         link,
		SourceName:  h.Name(),
		Engagement: domain.Engagement{
			Points:   domain.IntPtr(item.Score),
			Comments: domain.IntPtr(item.Descendants),
		},
	}
	if item.Time > 0 {
		posted := time.Unix(item.Time, 0).UTC()
		idea.SourceDate = &posted
	}

	return domain.NewIdea(idea, h.opts.now())
}

func hnDescription(item hnItem) string {
	var parts []string
	if item.By != "" {
		parts = append(parts, "by "+item.By)
	}
	if item.Score > 0 {
		parts = append(parts, fmt.Sprintf("%d points", item.Score))
	}
	if item.Descendants > 0 {
		parts = append(parts, fmt.Sprintf("%d comments", item.Descendants))
	}
	return strings.Join(parts, " | ")
}
