package digest

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"

	"IdeaDigest/internal/domain"
)

const (
	defaultDescriptionRunes = 200
	defaultTitleRunes       = 50
	defaultTagsPerItem      = 3
	defaultTopThemes        = 5
)

var themeEmoji = map[string]string{
	"ai-ml":           "🤖",
	"developer-tools": "🛠️",
	"programming":     "💻",
	"startup":         "🚀",
	"open-source":     "📂",
	"security":        "🔒",
	"data":            "📊",
	"web-mobile":      "🌐",
	"productivity":    "⚡",
}

// RenderOptions tunes the Markdown output. Zero values take defaults.
type RenderOptions struct {
	IncludeUngrouped bool
	DescriptionRunes int
	TagsPerItem      int
	TopThemes        int
}

// Rendered is the outcome of one render.
type Rendered struct {
	Markdown string
	Items    int
	// Themes lists the named sections, alphabetically.
	Themes []string
}

// Renderer turns ideas into the Markdown digest. It never reads the clock,
// so the same ideas and date always give byte-identical output.
type Renderer struct {
	opts RenderOptions
}

func NewRenderer(opts RenderOptions) *Renderer {
	if opts.DescriptionRunes <= 0 {
		opts.DescriptionRunes = defaultDescriptionRunes
	}
	if opts.TagsPerItem <= 0 {
		opts.TagsPerItem = defaultTagsPerItem
	}
	if opts.TopThemes <= 0 {
		opts.TopThemes = defaultTopThemes
	}
	return &Renderer{opts: opts}
}

// Render sorts, groups and formats ideas for date. The input slice is not modified.
func (r *Renderer) Render(ideas []domain.Idea, date time.Time) Rendered {
	sorted := make([]domain.Idea, len(ideas))
	copy(sorted, ideas)
	SortIdeas(sorted)

	groups := GroupByTheme(sorted, r.opts.IncludeUngrouped)

	var b strings.Builder
	day := date.Format(time.DateOnly)
	fmt.Fprintf(&b, "# Idea Digest - %s\n\n", day)
	fmt.Fprintf(&b, "*Generated for %s*\n\n", date.Format("January 02, 2006"))

	r.writeSummary(&b, sorted, groups)

	var themes []string
	for _, g := range groups {
		if g.Ungrouped() {
			b.WriteString("## 📁 Other Items\n\n")
		} else {
			themes = append(themes, g.Theme)
			fmt.Fprintf(&b, "## %s %s\n\n", emojiFor(g.Theme), titleCase(g.Theme))
		}
		for _, idea := range g.Ideas {
			r.writeIdea(&b, idea)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n*Generated by Idea Digest*\n")

	return Rendered{
		Markdown: b.String(),
		Items:    len(sorted),
		Themes:   themes,
	}
}

func (r *Renderer) writeSummary(b *strings.Builder, ideas []domain.Idea, groups []Group) {
	b.WriteString("## 📊 Summary\n\n")
	fmt.Fprintf(b, "- **Total items:** %d\n", len(ideas))

	if top := topThemes(groups, r.opts.TopThemes); len(top) > 0 {
		parts := make([]string, len(top))
		for i, tc := range top {
			parts[i] = fmt.Sprintf("%s (%d)", tc.theme, tc.count)
		}
		fmt.Fprintf(b, "- **Top themes:** %s\n", strings.Join(parts, ", "))
	}

	if len(ideas) > 0 {
		best := ideas[0]
		fmt.Fprintf(b, "- **Top item:** [%s](%s) (score: %.2f)\n",
			truncate(best.Title, defaultTitleRunes), best.URL, best.Score)

		lo, hi, sum := best.Score, best.Score, 0.0
		for _, idea := range ideas {
			lo = min(lo, idea.Score)
			hi = max(hi, idea.Score)
			sum += idea.Score
		}
		fmt.Fprintf(b, "- **Score range:** %.2f - %.2f (avg: %.2f)\n", lo, hi, sum/float64(len(ideas)))
	}

	fmt.Fprintf(b, "- **Sources:** %s\n\n", strings.Join(sourceNames(ideas), ", "))
}

func (r *Renderer) writeIdea(b *strings.Builder, idea domain.Idea) {
	fmt.Fprintf(b, "### **[%.2f]** [%s](%s)\n\n", idea.Score, idea.Title, idea.URL)

	meta := "`" + idea.SourceName + "`"
	if tags := idea.Tags.First(r.opts.TagsPerItem); len(tags) > 0 {
		for i, tag := range tags {
			tags[i] = "#" + tag
		}
		meta += " " + strings.Join(tags, " | ")
	}
	b.WriteString(meta + "\n\n")

	if idea.Description != "" {
		fmt.Fprintf(b, "> %s\n\n", truncate(idea.Description, r.opts.DescriptionRunes))
	}

	if line := engagementLine(idea); line != "" {
		b.WriteString(line + "\n\n")
	}
}

func engagementLine(idea domain.Idea) string {
	e := idea.Engagement
	var parts []string
	add := func(v *int, unit string) {
		if v != nil && *v > 0 {
			parts = append(parts, humanize.Comma(int64(*v))+" "+unit)
		}
	}
	add(e.Points, "points")
	add(e.Votes, "votes")
	add(e.Stars, "stars")
	if e.StarsToday != nil && *e.StarsToday > 0 {
		parts = append(parts, "+"+humanize.Comma(int64(*e.StarsToday))+" today")
	}
	add(e.Comments, "comments")
	if idea.Maker.Name != "" {
		parts = append(parts, "by "+idea.Maker.Name)
	}
	if len(parts) == 0 {
		return ""
	}
	return "📈 " + strings.Join(parts, " · ")
}

func sourceNames(ideas []domain.Idea) []string {
	seen := map[string]bool{}
	var names []string
	for _, idea := range ideas {
		if !seen[idea.SourceName] {
			seen[idea.SourceName] = true
			names = append(names, idea.SourceName)
		}
	}
	sort.Strings(names)
	return names
}

func emojiFor(theme string) string {
	if e, ok := themeEmoji[theme]; ok {
		return e
	}
	return "📌"
}

// titleCase turns "developer-tools" into "Developer Tools".
func titleCase(theme string) string {
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(theme))
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// truncate cuts s to limit runes and marks the cut with "...".
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
