package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"IdeaDigest/internal/scoring"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "IDEA_DIGEST_CONFIG"

	EnvDevelopment = "development"
	EnvProduction  = "production"

	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendAirtable = "airtable"
)

// KnownSources lists the source names the registry can build.
var KnownSources = []string{"hackernews", "producthunt", "github"}

var knownBackends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendAirtable}

// Config holds high-level settings required across the application.
type Config struct {
	App           AppConfig          `yaml:"app"`
	Logging       LoggingConfig      `yaml:"logging"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Sources       SourcesConfig      `yaml:"sources"`
	Storage       StorageConfig      `yaml:"storage"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	Digest        DigestConfig       `yaml:"digest"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

type AppConfig struct {
	Env string `yaml:"env"`
}

// IsProduction reports whether credentials are mandatory.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, EnvProduction)
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FetchConfig bounds every outbound source call.
// Timeout applies to a single HTTP request; SourceTimeout, when set, caps a
// whole source fetch including pacing.
type FetchConfig struct {
	LimitPerSource int           `yaml:"limitPerSource"`
	Timeout        time.Duration `yaml:"timeout"`
	SourceTimeout  time.Duration `yaml:"sourceTimeout"`
	ScrapeDelay    time.Duration `yaml:"scrapeDelay"`
}

// SourcesConfig selects and tunes the enabled sources, in run order.
type SourcesConfig struct {
	Enabled     []string          `yaml:"enabled"`
	ProductHunt ProductHuntConfig `yaml:"producthunt"`
	GitHub      GitHubConfig      `yaml:"github"`
}

type ProductHuntConfig struct {
	Token string `yaml:"token"`
}

type GitHubConfig struct {
	Since    string `yaml:"since"`
	Language string `yaml:"language"`
}

// StorageConfig picks the keyed store backend and its retention policy.
type StorageConfig struct {
	Backend       string         `yaml:"backend"`
	SQLite        SQLiteConfig   `yaml:"sqlite"`
	Postgres      PostgresConfig `yaml:"postgres"`
	Airtable      AirtableConfig `yaml:"airtable"`
	MaxRecords    int            `yaml:"maxRecords"`
	RetentionDays int            `yaml:"retentionDays"`
	AutoPrune     bool           `yaml:"autoPrune"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type AirtableConfig struct {
	APIKey string `yaml:"apiKey"`
	BaseID string `yaml:"baseId"`
	Table  string `yaml:"table"`
}

// ScoringConfig overrides the built-in themes when non-empty.
type ScoringConfig struct {
	Themes []scoring.Theme `yaml:"themes"`
}

type DigestConfig struct {
	OutputDir        string  `yaml:"outputDir"`
	Limit            int     `yaml:"limit"`
	Days             int     `yaml:"days"`
	MinScore         float64 `yaml:"minScore"`
	IncludeUngrouped bool    `yaml:"includeUngrouped"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	RunOnStart     bool           `yaml:"runOnStart"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// MetricsConfig points at a node-exporter textfile; empty disables export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Load reads YAML configuration over the defaults and applies environment
// overrides. An empty path falls back to IDEA_DIGEST_CONFIG; no path at all
// means defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(os.Getenv); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides(getenv func(string) string) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	seconds := func(name string, dst *time.Duration) {
		if v := getenv(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = time.Duration(f * float64(time.Second))
		}
	}

	str("APP_ENV", &c.App.Env)
	str("LOG_LEVEL", &c.Logging.Level)
	num("DEFAULT_LIMIT_PER_SOURCE", &c.Fetch.LimitPerSource)
	seconds("REQUEST_TIMEOUT", &c.Fetch.Timeout)
	seconds("SCRAPE_DELAY", &c.Fetch.ScrapeDelay)
	seconds("SOURCE_TIMEOUT", &c.Fetch.SourceTimeout)
	str("PRODUCT_HUNT_TOKEN", &c.Sources.ProductHunt.Token)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("SQLITE_PATH", &c.Storage.SQLite.Path)
	str("DATABASE_DSN", &c.Storage.Postgres.DSN)
	str("AIRTABLE_API_KEY", &c.Storage.Airtable.APIKey)
	str("AIRTABLE_BASE_ID", &c.Storage.Airtable.BaseID)
	str("AIRTABLE_TABLE_NAME", &c.Storage.Airtable.Table)
	num("AIRTABLE_MAX_RECORDS", &c.Storage.MaxRecords)
	num("AIRTABLE_RETENTION_DAYS", &c.Storage.RetentionDays)
	if v := getenv("AIRTABLE_AUTO_CLEANUP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("AIRTABLE_AUTO_CLEANUP: %w", err))
		} else {
			c.Storage.AutoPrune = b
		}
	}
	str("TELEGRAM_BOT_TOKEN", &c.Notifications.Telegram.BotToken)
	str("TELEGRAM_CHAT_ID", &c.Notifications.Telegram.ChatID)
	str("DIGEST_OUTPUT_DIR", &c.Digest.OutputDir)
	str("METRICS_TEXTFILE", &c.Metrics.Textfile)

	if len(errs) > 0 {
		return fmt.Errorf("config: env overrides: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) normalize() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	for i, name := range c.Sources.Enabled {
		c.Sources.Enabled[i] = strings.ToLower(strings.TrimSpace(name))
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("config: unknown timezone %q: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.Fetch.LimitPerSource < 1 {
		errs = append(errs, fmt.Errorf("fetch.limitPerSource must be at least 1, got %d", c.Fetch.LimitPerSource))
	}
	if c.Fetch.Timeout < time.Second {
		errs = append(errs, fmt.Errorf("fetch.timeout must be at least 1s, got %s", c.Fetch.Timeout))
	}
	if c.Fetch.SourceTimeout < 0 {
		errs = append(errs, fmt.Errorf("fetch.sourceTimeout must not be negative, got %s", c.Fetch.SourceTimeout))
	}
	if c.Fetch.ScrapeDelay < 0 {
		errs = append(errs, fmt.Errorf("fetch.scrapeDelay must not be negative, got %s", c.Fetch.ScrapeDelay))
	}
	if len(c.Sources.Enabled) == 0 {
		errs = append(errs, errors.New("sources.enabled must name at least one source"))
	}
	for _, name := range c.Sources.Enabled {
		if !slices.Contains(KnownSources, name) {
			errs = append(errs, fmt.Errorf("unknown source %q (known: %s)", name, strings.Join(KnownSources, ", ")))
		}
	}
	switch c.Sources.GitHub.Since {
	case "daily", "weekly", "monthly":
	default:
		errs = append(errs, fmt.Errorf("sources.github.since must be daily, weekly or monthly, got %q", c.Sources.GitHub.Since))
	}

	if !slices.Contains(knownBackends, c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.App.IsProduction() {
		errs = append(errs, c.Storage.credentialErrors()...)
	}
	if c.Storage.MaxRecords < 1 {
		errs = append(errs, errors.New("storage.maxRecords must be at least 1"))
	}
	if c.Storage.RetentionDays < 1 {
		errs = append(errs, errors.New("storage.retentionDays must be at least 1"))
	}

	if len(c.Scoring.Themes) > 0 {
		if err := scoring.ValidateThemes(c.Scoring.Themes); err != nil {
			errs = append(errs, fmt.Errorf("scoring.themes: %w", err))
		}
	}

	if c.Digest.OutputDir == "" {
		errs = append(errs, errors.New("digest.outputDir is required"))
	}
	if c.Digest.Limit < 0 || c.Digest.Days < 0 {
		errs = append(errs, errors.New("digest.limit and digest.days must not be negative"))
	}
	if c.Digest.MinScore < 0 || c.Digest.MinScore > 1 {
		errs = append(errs, fmt.Errorf("digest.minScore must be within [0,1], got %v", c.Digest.MinScore))
	}

	if _, err := cron.ParseStandard(c.Scheduler.CronExpression); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.cronExpression %q: %w", c.Scheduler.CronExpression, err))
	}

	return errors.Join(errs...)
}

func (s StorageConfig) credentialErrors() []error {
	var errs []error
	switch s.Backend {
	case BackendPostgres:
		if s.Postgres.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for the postgres backend"))
		}
	case BackendAirtable:
		if s.Airtable.APIKey == "" {
			errs = append(errs, errors.New("AIRTABLE_API_KEY is required for the airtable backend"))
		}
		if s.Airtable.BaseID == "" {
			errs = append(errs, errors.New("AIRTABLE_BASE_ID is required for the airtable backend"))
		}
	case BackendSQLite:
		if s.SQLite.Path == "" {
			errs = append(errs, errors.New("storage.sqlite.path is required for the sqlite backend"))
		}
	}
	return errs
}

// Summary renders the effective configuration with secrets masked.
func (c Config) Summary() string {
	var b strings.Builder
	line := func(key string, value any) {
		fmt.Fprintf(&b, "%-24s %v\n", key+":", value)
	}
	line("env", c.App.Env)
	line("log level", c.Logging.Level)
	line("sources", strings.Join(c.Sources.Enabled, ", "))
	line("limit per source", c.Fetch.LimitPerSource)
	line("request timeout", c.Fetch.Timeout)
	line("source timeout", c.Fetch.SourceTimeout)
	line("scrape delay", c.Fetch.ScrapeDelay)
	line("producthunt token", mask(c.Sources.ProductHunt.Token))
	line("github trending", c.Sources.GitHub.Since+" "+c.Sources.GitHub.Language)
	line("storage backend", c.Storage.Backend)
	switch c.Storage.Backend {
	case BackendSQLite:
		line("sqlite path", c.Storage.SQLite.Path)
	case BackendPostgres:
		line("postgres dsn", mask(c.Storage.Postgres.DSN))
		line("postgres table", c.Storage.Postgres.Table)
	case BackendAirtable:
		line("airtable api key", mask(c.Storage.Airtable.APIKey))
		line("airtable base", c.Storage.Airtable.BaseID)
		line("airtable table", c.Storage.Airtable.Table)
	}
	line("retention", fmt.Sprintf("max %d records, %d days, auto prune %t", c.Storage.MaxRecords, c.Storage.RetentionDays, c.Storage.AutoPrune))
	line("themes", len(c.Themes()))
	line("digest dir", c.Digest.OutputDir)
	line("digest selection", fmt.Sprintf("limit %d, days %d, min score %.2f", c.Digest.Limit, c.Digest.Days, c.Digest.MinScore))
	line("schedule", c.Scheduler.CronExpression+" ("+c.Scheduler.Location().String()+")")
	line("telegram", mask(c.Notifications.Telegram.BotToken))
	line("metrics textfile", c.Metrics.Textfile)
	return b.String()
}

// Themes returns the configured themes or the built-in set.
func (c Config) Themes() []scoring.Theme {
	if len(c.Scoring.Themes) > 0 {
		return c.Scoring.Themes
	}
	return scoring.DefaultThemes()
}

func mask(secret string) string {
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "****"
	}
}

// Default returns the built-in configuration.
func Default() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		App:     AppConfig{Env: EnvDevelopment},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Fetch: FetchConfig{
			LimitPerSource: 20,
			Timeout:        30 * time.Second,
			ScrapeDelay:    2 * time.Second,
		},
		Sources: SourcesConfig{
			Enabled: []string{"hackernews", "producthunt", "github"},
			GitHub:  GitHubConfig{Since: "daily"},
		},
		Storage: StorageConfig{
			Backend:       BackendSQLite,
			SQLite:        SQLiteConfig{Path: "data/ideas.db"},
			Postgres:      PostgresConfig{Table: "ideas"},
			Airtable:      AirtableConfig{Table: "Ideas"},
			MaxRecords:    1000,
			RetentionDays: 30,
			AutoPrune:     true,
		},
		Digest: DigestConfig{
			OutputDir:        "digests",
			Limit:            50,
			Days:             1,
			IncludeUngrouped: true,
		},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
	}
}
