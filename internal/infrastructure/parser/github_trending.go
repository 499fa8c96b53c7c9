package parser

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"

	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/scanner"
)

const (
	githubBaseURL = "https://github.com"
	githubAccept  = "text/html"
)

var countExpr = regexp.MustCompile(`([\d.]+)\s*([km])?`)

// GitHubTrendingScanner scrapes the trending page; GitHub has no trending API.
type GitHubTrendingScanner struct {
	opts     options
	since    string
	language string
}

var _ scanner.Scanner = (*GitHubTrendingScanner)(nil)

// NewGitHubTrendingScanner builds the scanner. since is daily, weekly or
// monthly (daily when empty); language optionally narrows the page.
func NewGitHubTrendingScanner(since, language string, opts ...Option) *GitHubTrendingScanner {
	if since == "" {
		since = "daily"
	}
	return &GitHubTrendingScanner{
		opts:     buildOptions(githubBaseURL, opts),
		since:    since,
		language: strings.TrimSpace(language),
	}
}

// Name identifies the strategy inside the registry.
func (g *GitHubTrendingScanner) Name() string {
	return "github"
}

type trendingRepo struct {
	owner       string
	name        string
	description string
	language    string
	stars       int
	starsToday  int
	forks       int
}

func (r trendingRepo) fullName() string {
	return r.owner + "/" + r.name
}

// Fetch scrapes the trending page and returns up to limit repositories.
func (g *GitHubTrendingScanner) Fetch(ctx context.Context, limit int) ([]domain.Idea, error) {
	if limit <= 0 {
		return nil, nil
	}

	body, err := g.opts.get(ctx, g.pageURL(), githubAccept)
	if err != nil {
		return nil, fmt.Errorf("trending page: %w", err)
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	repos := parseTrending(doc)
	ideas := make([]domain.Idea, 0, limit)
	for _, repo := range repos {
		if len(ideas) == limit {
			break
		}
		idea, err := g.normalize(repo)
		if err != nil {
			g.opts.logger.Warn("skip repository", "repo", repo.fullName(), "error", err)
			continue
		}
		ideas = append(ideas, idea)
	}

	g.opts.logger.Info("fetched trending repositories", "count", len(ideas), "requested", limit, "since", g.since)
	return ideas, nil
}

func (g *GitHubTrendingScanner) pageURL() string {
	page := strings.TrimSuffix(g.opts.baseURL, "/") + "/trending"
	if g.language != "" {
		page += "/" + url.PathEscape(strings.ToLower(g.language))
	}
	return page + "?since=" + url.QueryEscape(g.since)
}

func parseTrending(doc *goquery.Document) []trendingRepo {
	var repos []trendingRepo
	doc.Find("article.Box-row").Each(func(_ int, article *goquery.Selection) {
		href, ok := article.Find("h2 a").First().Attr("href")
		if !ok {
			return
		}
		parts := strings.Split(strings.Trim(strings.TrimSpace(href), "/"), "/")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return
		}

		repo := trendingRepo{
			owner:       parts[0],
			name:        parts[1],
			description: collapse(article.Find("p").First().Text()),
			language:    collapse(article.Find(`span[itemprop="programmingLanguage"]`).First().Text()),
			stars:       parseCount(article.Find(`a[href$="/stargazers"]`).First().Text()),
			forks:       parseCount(article.Find(`a[href$="/forks"]`).First().Text()),
		}
		article.Find("span.d-inline-block").EachWithBreak(func(_ int, span *goquery.Selection) bool {
			text := strings.ToLower(span.Text())
			if strings.Contains(text, "stars") && (strings.Contains(text, "today") || strings.Contains(text, "this")) {
				repo.starsToday = parseCount(text)
				return false
			}
			return true
		})
		repos = append(repos, repo)
	})
	return repos
}

func (g *GitHubTrendingScanner) normalize(repo trendingRepo) (domain.Idea, error) {
	title := repo.fullName()
	if repo.language != "" {
		title = fmt.Sprintf("%s (%s)", title, repo.language)
	}

	var stats []string
	if repo.stars > 0 {
		stats = append(stats, "⭐ "+humanize.Comma(int64(repo.stars)))
	}
	if repo.starsToday > 0 {
		stats = append(stats, fmt.Sprintf("+%d today", repo.starsToday))
	}
	var descParts []string
	if repo.description != "" {
		descParts = append(descParts, repo.description)
	}
	if len(stats) > 0 {
		descParts = append(descParts, strings.Join(stats, " | "))
	}

	now := g.opts.now().UTC()
	idea := domain.Idea{
		ID:          "gh_" + repo.owner + "_" + repo.name,
		Title:       title,
		Description: strings.Join(descParts, " — "),
		URL:         githubBaseURL + "/" + repo.fullName(),
		SourceName:  g.Name(),
		SourceDate:  &now,
		Engagement: domain.Engagement{
			Stars:      domain.IntPtr(repo.stars),
			StarsToday: domain.IntPtr(repo.starsToday),
			Forks:      domain.IntPtr(repo.forks),
			Language:   repo.language,
		},
	}
	return domain.NewIdea(idea, now)
}

// parseCount reads "1,234", "1.2k" or "3m" style counts; unparseable text is 0.
func parseCount(text string) int {
	text = strings.ReplaceAll(strings.ToLower(text), ",", "")
	m := countExpr.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch m[2] {
	case "k":
		n *= 1_000
	case "m":
		n *= 1_000_000
	}
	return int(math.Round(n))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
