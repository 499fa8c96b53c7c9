package scoring

import (
	"errors"
	"fmt"
	"strings"
)

// Theme is a named topic with its keyword list and scoring weight.
// Keywords are matched as lowercase substrings, so "ml" also hits "html".
type Theme struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Weight   float64  `yaml:"weight"`
}

// EffectiveWeight returns the configured weight or 1.0 when unset.
func (t Theme) EffectiveWeight() float64 {
	if t.Weight == 0 {
		return 1.0
	}
	return t.Weight
}

// Validate checks a single theme definition.
func (t Theme) Validate() error {
	var errs []error
	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, errors.New("theme name is required"))
	}
	if len(t.Keywords) == 0 {
		errs = append(errs, fmt.Errorf("theme %q has no keywords", t.Name))
	}
	if t.Weight < 0 {
		errs = append(errs, fmt.Errorf("theme %q has negative weight %v", t.Name, t.Weight))
	}
	return errors.Join(errs...)
}

// ValidateThemes checks every theme and rejects duplicate names.
func ValidateThemes(themes []Theme) error {
	var errs []error
	seen := make(map[string]bool, len(themes))
	for _, theme := range themes {
		if err := theme.Validate(); err != nil {
			errs = append(errs, err)
		}
		name := strings.ToLower(strings.TrimSpace(theme.Name))
		if name != "" && seen[name] {
			errs = append(errs, fmt.Errorf("theme %q defined twice", theme.Name))
		}
		seen[name] = true
	}
	return errors.Join(errs...)
}

// DefaultThemes returns the built-in interest themes in their canonical order.
func DefaultThemes() []Theme {
	return []Theme{
		{
			Name:   "ai-ml",
			Weight: 1.5,
			Keywords: []string{
				"artificial intelligence", "machine learning", "deep learning", "neural network",
				"gpt", "llm", "chatgpt", "openai", "anthropic", "claude", "transformer",
				"diffusion", "stable diffusion", "midjourney", "generative ai", "langchain",
				"vector database", "embeddings", "fine-tuning", "rag", "retrieval augmented",
			},
		},
		{
			Name:   "developer-tools",
			Weight: 1.3,
			Keywords: []string{
				"developer tool", "dev tool", "ide", "code editor", "vscode", "vim", "neovim",
				"terminal", "cli", "command line", "git", "github", "gitlab", "devops", "ci/cd",
				"docker", "kubernetes", "terraform", "infrastructure", "api", "sdk",
				"framework", "library",
			},
		},
		{
			Name:   "programming",
			Weight: 1.0,
			Keywords: []string{
				// " go " is padded so it does not hit "google".
				"python", "javascript", "typescript", "rust", "golang", " go ", "swift",
				"kotlin", "java", "c++", "cpp", "haskell", "elixir", "ruby", "rails", "react",
				"vue", "svelte", "nextjs", "next.js", "compiler", "interpreter",
			},
		},
		{
			Name:   "startup",
			Weight: 1.2,
			Keywords: []string{
				"startup", "founder", "yc", "y combinator", "ycombinator", "venture", "funding",
				"seed round", "series a", "bootstrap", "saas", "b2b", "b2c", "product hunt",
				"launch", "mvp", "pivot", "growth", "acquisition",
			},
		},
		{
			Name:   "open-source",
			Weight: 1.1,
			Keywords: []string{
				"open source", "open-source", "opensource", "foss", "free software",
				"mit license", "apache license", "gpl", "contributor", "maintainer",
				"pull request", "issue tracker",
			},
		},
		{
			Name:   "security",
			Weight: 1.2,
			Keywords: []string{
				"security", "cybersecurity", "encryption", "privacy", "vulnerability", "exploit",
				"hacking", "penetration", "zero-day", "authentication", "oauth", "jwt",
				"password", "2fa", "mfa", "firewall", "vpn",
			},
		},
		{
			Name:   "data",
			Weight: 1.0,
			Keywords: []string{
				"database", "sql", "nosql", "postgresql", "mysql", "mongodb", "redis",
				"elasticsearch", "data engineering", "data science", "analytics",
				"visualization", "dashboard", "metrics", "etl", "data pipeline", "warehouse",
				"bigquery", "snowflake",
			},
		},
		{
			Name:   "web-mobile",
			Weight: 0.9,
			Keywords: []string{
				"web app", "webapp", "mobile app", "ios app", "android app", "pwa",
				"responsive", "frontend", "backend", "full stack", "fullstack", "browser",
				"chrome", "firefox", "safari", "webassembly", "wasm",
			},
		},
		{
			Name:   "productivity",
			Weight: 0.8,
			Keywords: []string{
				"productivity", "automation", "workflow", "task management", "todo", "to-do",
				"notion", "obsidian", "note-taking", "calendar", "scheduling", "time tracking",
				"efficiency",
			},
		},
	}
}
