package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"IdeaDigest/internal/domain"
)

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: sq.Question,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS {table} (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			source_name TEXT NOT NULL,
			source_date TEXT,
			score REAL NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '[]',
			engagement TEXT NOT NULL DEFAULT '{}',
			maker TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS {score_idx} ON {table} (score DESC)`,
		`CREATE INDEX IF NOT EXISTS {created_idx} ON {table} (created_at)`,
	},
	// Fixed-width UTC text keeps string comparison in time order.
	encodeTime: func(t time.Time) any { return domain.FormatTimestamp(t) },
}

// OpenSQLite opens (or creates) the database file at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is empty", ErrMisconfigured)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	backend := newSQLBackend(db, sqliteDialect, defaultTable)
	if err := backend.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}
