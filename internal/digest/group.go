package digest

import (
	"sort"

	"IdeaDigest/internal/domain"
)

// UngroupedKey names the bucket for ideas without tags.
const UngroupedKey = "_ungrouped"

// Group is one themed section of the digest.
type Group struct {
	Theme string
	Ideas []domain.Idea
}

// Ungrouped reports whether g is the bucket for untagged ideas.
func (g Group) Ungrouped() bool {
	return g.Theme == UngroupedKey
}

// SortIdeas orders by score descending, then title, then key. It sorts in place.
func SortIdeas(ideas []domain.Idea) {
	sort.SliceStable(ideas, func(i, j int) bool {
		a, b := ideas[i], ideas[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
}

// GroupByTheme fans each idea out into every one of its tag groups. Untagged
// ideas go to the ungrouped bucket, or nowhere when includeUngrouped is false.
// Named groups come back alphabetically with the ungrouped bucket last.
func GroupByTheme(ideas []domain.Idea, includeUngrouped bool) []Group {
	buckets := map[string][]domain.Idea{}
	for _, idea := range ideas {
		if idea.Tags.IsEmpty() {
			if includeUngrouped {
				buckets[UngroupedKey] = append(buckets[UngroupedKey], idea)
			}
			continue
		}
		for _, tag := range idea.Tags.Names() {
			buckets[tag] = append(buckets[tag], idea)
		}
	}

	themes := make([]string, 0, len(buckets))
	for theme := range buckets {
		if theme != UngroupedKey {
			themes = append(themes, theme)
		}
	}
	sort.Strings(themes)
	if _, ok := buckets[UngroupedKey]; ok {
		themes = append(themes, UngroupedKey)
	}

	groups := make([]Group, 0, len(themes))
	for _, theme := range themes {
		members := buckets[theme]
		SortIdeas(members)
		groups = append(groups, Group{Theme: theme, Ideas: members})
	}
	return groups
}

type themeCount struct {
	theme string
	count int
}

// topThemes ranks named groups by size, ties broken by name.
func topThemes(groups []Group, n int) []themeCount {
	var counts []themeCount
	for _, g := range groups {
		if !g.Ungrouped() {
			counts = append(counts, themeCount{theme: g.Theme, count: len(g.Ideas)})
		}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].theme < counts[j].theme
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
