package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/scanner"
)

const (
	productHuntGraphQL = "https://api.producthunt.com/v2/api/graphql"
	productHuntFeed    = "https://www.producthunt.com/feed"
	productHuntProfile = "https://www.producthunt.com/@"

	maxSummaryRunes = 500
	maxTaglineRunes = 200
)

const productHuntQuery = `query GetPosts($first: Int!) {
  posts(first: $first) {
    edges {
      node {
        id
        name
        tagline
        description
        url
        votesCount
        commentsCount
        createdAt
        website
        makers { id name username }
      }
    }
  }
}`

// ProductHuntScanner uses the GraphQL API when a token is configured and
// falls back to the public feed otherwise. Feed entries carry no vote counts.
type ProductHuntScanner struct {
	opts       options
	token      string
	graphqlURL string
	parser     *gofeed.Parser
}

var _ scanner.Scanner = (*ProductHuntScanner)(nil)

// NewProductHuntScanner builds the scanner. WithBaseURL overrides the feed URL;
// the GraphQL endpoint is set with WithGraphQLURL.
func NewProductHuntScanner(token string, opts ...Option) *ProductHuntScanner {
	return &ProductHuntScanner{
		opts:       buildOptions(productHuntFeed, opts),
		token:      strings.TrimSpace(token),
		graphqlURL: productHuntGraphQL,
		parser:     gofeed.NewParser(),
	}
}

// WithGraphQLURL overrides the API endpoint.
func (p *ProductHuntScanner) WithGraphQLURL(endpoint string) *ProductHuntScanner {
	p.graphqlURL = endpoint
	return p
}

// Name identifies the strategy inside the registry.
func (p *ProductHuntScanner) Name() string {
	return "producthunt"
}

// Fetch returns up to limit recent launches.
func (p *ProductHuntScanner) Fetch(ctx context.Context, limit int) ([]domain.Idea, error) {
	if limit <= 0 {
		return nil, nil
	}
	if p.token != "" {
		return p.fetchAPI(ctx, limit)
	}
	p.opts.logger.Debug("no api token, reading feed")
	return p.fetchFeed(ctx, limit)
}

type phResponse struct {
	Data struct {
		Posts struct {
			Edges []struct {
				Node phPost `json:"node"`
			} `json:"edges"`
		} `json:"posts"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type phPost struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Tagline       string `json:"tagline"`
	Description   string `json:"description"`
	URL           string `json:"url"`
	VotesCount    int    `json:"votesCount"`
	CommentsCount int    `json:"commentsCount"`
	CreatedAt     string `json:"createdAt"`
	Website       string `json:"website"`
	Makers        []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"makers"`
}

func (p *ProductHuntScanner) fetchAPI(ctx context.Context, limit int) ([]domain.Idea, error) {
	if err := p.opts.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", errPacing, err)
	}

	payload, err := json.Marshal(map[string]any{
		"query":     productHuntQuery,
		"variables": map[string]int{"first": limit},
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.graphqlURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", p.opts.userAgent)

	resp, err := p.opts.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphql request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graphql returned %s", resp.Status)
	}

	var decoded phResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", decoded.Errors[0].Message)
	}

	ideas := make([]domain.Idea, 0, len(decoded.Data.Posts.Edges))
	for _, edge := range decoded.Data.Posts.Edges {
		if len(ideas) == limit {
			break
		}
		idea, err := p.normalizePost(edge.Node)
		if err != nil {
			p.opts.logger.Warn("skip post", "name", edge.Node.Name, "error", err)
			continue
		}
		ideas = append(ideas, idea)
	}

	p.opts.logger.Info("fetched posts via api", "count", len(ideas), "requested", limit)
	return ideas, nil
}

func (p *ProductHuntScanner) normalizePost(post phPost) (domain.Idea, error) {
	link := post.Website
	if link == "" {
		link = post.URL
	}

	description := strings.TrimSpace(post.Tagline)
	if description == "" {
		description = truncateRunes(strings.TrimSpace(post.Description), maxTaglineRunes)
	}

	idea := domain.Idea{
		ID:          "ph_" + post.ID,
		Title:       post.Name,
		Description: description,
		URL:         link,
		SourceName:  p.Name(),
		Engagement: domain.Engagement{
			Votes:    domain.IntPtr(post.VotesCount),
			Comments: domain.IntPtr(post.CommentsCount),
		},
	}
	if post.ID == "" {
		idea.ID = "ph_" + stableID(link)
	}
	if created, err := time.Parse(time.RFC3339, post.CreatedAt); err == nil {
		created = created.UTC()
		idea.SourceDate = &created
	}
	if len(post.Makers) > 0 {
		maker := post.Makers[0]
		idea.Maker = domain.Maker{Name: maker.Name, Username: maker.Username}
		if maker.Username != "" {
			idea.Maker.URL = productHuntProfile + maker.Username
		}
	}

	return domain.NewIdea(idea, p.opts.now())
}

func (p *ProductHuntScanner) fetchFeed(ctx context.Context, limit int) ([]domain.Idea, error) {
	body, err := p.opts.get(ctx, p.opts.baseURL, "application/rss+xml, application/atom+xml")
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	defer body.Close()

	feed, err := p.parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	ideas := make([]domain.Idea, 0, limit)
	for _, item := range feed.Items {
		if len(ideas) == limit {
			break
		}
		idea, err := p.normalizeEntry(item)
		if err != nil {
			p.opts.logger.Warn("skip feed entry", "title", item.Title, "error", err)
			continue
		}
		ideas = append(ideas, idea)
	}

	p.opts.logger.Info("fetched posts via feed", "count", len(ideas), "requested", limit)
	return ideas, nil
}

func (p *ProductHuntScanner) normalizeEntry(item *gofeed.Item) (domain.Idea, error) {
	link := strings.TrimSpace(item.Link)

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	idea := domain.Idea{
		ID:          "ph_" + postSlug(link),
		Title:       item.Title,
		Description: stripHTML(summary, maxSummaryRunes),
		URL:         link,
		SourceName:  p.Name(),
	}
	switch {
	case item.PublishedParsed != nil:
		published := item.PublishedParsed.UTC()
		idea.SourceDate = &published
	case item.UpdatedParsed != nil:
		updated := item.UpdatedParsed.UTC()
		idea.SourceDate = &updated
	}

	return domain.NewIdea(idea, p.opts.now())
}

// postSlug extracts the slug of a /posts/<slug> link, or derives a stable id from the URL.
func postSlug(link string) string {
	if _, after, ok := strings.Cut(link, "/posts/"); ok {
		slug, _, _ := strings.Cut(after, "?")
		slug = strings.Trim(slug, "/")
		if slug != "" {
			return slug
		}
	}
	return stableID(link)
}

func stableID(link string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(link)).String()
}

// stripHTML reduces an HTML fragment to collapsed plain text of at most limit runes.
func stripHTML(fragment string, limit int) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	text := fragment
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment)); err == nil {
		doc.Find("br, p, div, li").Each(func(_ int, s *goquery.Selection) {
			s.AppendHtml(" ")
		})
		text = doc.Text()
	}
	return truncateRunes(strings.Join(strings.Fields(text), " "), limit)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
