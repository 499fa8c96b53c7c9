package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: sq.Dollar,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS {table} (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			source_name TEXT NOT NULL,
			source_date TIMESTAMPTZ,
			score DOUBLE PRECISION NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '[]',
			engagement TEXT NOT NULL DEFAULT '{}',
			maker TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS {score_idx} ON {table} (score DESC)`,
		`CREATE INDEX IF NOT EXISTS {created_idx} ON {table} (created_at)`,
	},
	encodeTime: func(t time.Time) any { return t.UTC() },
}

// NewPostgresBackend wires an existing pool. Call Migrate before first use.
func NewPostgresBackend(db *sql.DB, table string) *SQLBackend {
	return newSQLBackend(db, postgresDialect, table)
}

// OpenPostgres connects with dsn through lib/pq and migrates the schema.
func OpenPostgres(ctx context.Context, dsn, table string) (*SQLBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is empty", ErrMisconfigured)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	backend := NewPostgresBackend(db, table)
	if err := backend.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}
