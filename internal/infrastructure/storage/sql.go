package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/ports"
)

const defaultTable = "ideas"

var ideaColumns = []string{
	"id", "title", "description", "url", "source_name", "source_date",
	"score", "tags", "engagement", "maker", "created_at", "updated_at",
}

// dialect captures what differs between the SQL engines we support.
type dialect struct {
	name        string
	placeholder sq.PlaceholderFormat
	schema      []string
	encodeTime  func(time.Time) any
}

// SQLBackend stores ideas in a single table through database/sql.
// Queries are built with squirrel so both dialects share one code path.
type SQLBackend struct {
	db      *sql.DB
	dialect dialect
	table   string
	builder sq.StatementBuilderType
}

var _ ports.KeyedBackend = (*SQLBackend)(nil)

func newSQLBackend(db *sql.DB, d dialect, table string) *SQLBackend {
	if table == "" {
		table = defaultTable
	}
	return &SQLBackend{
		db:      db,
		dialect: d,
		table:   table,
		builder: sq.StatementBuilder.PlaceholderFormat(d.placeholder),
	}
}

func (b *SQLBackend) Name() string {
	return b.dialect.name
}

func (b *SQLBackend) quotedTable() string {
	return pq.QuoteIdentifier(b.table)
}

// Migrate creates the table and its indexes when missing.
func (b *SQLBackend) Migrate(ctx context.Context) error {
	if b.db == nil {
		return fmt.Errorf("%w: %s database is not configured", ErrMisconfigured, b.dialect.name)
	}
	for _, stmt := range b.dialect.schema {
		query := strings.NewReplacer(
			"{table}", b.quotedTable(),
			"{score_idx}", pq.QuoteIdentifier(b.table+"_score_idx"),
			"{created_idx}", pq.QuoteIdentifier(b.table+"_created_idx"),
		).Replace(stmt)
		if _, err := b.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migrate %s: %w", b.dialect.name, err)
		}
	}
	return nil
}

func (b *SQLBackend) Check(ctx context.Context) error {
	if b.db == nil {
		return fmt.Errorf("%w: %s database is not configured", ErrMisconfigured, b.dialect.name)
	}
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", b.dialect.name, err)
	}
	return nil
}

// Close releases the underlying pool.
func (b *SQLBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLBackend) FindByKey(ctx context.Context, key string) (ports.StoredRecord, bool, error) {
	query, args, err := b.builder.
		Select(ideaColumns...).
		From(b.quotedTable()).
		Where(sq.Eq{"id": key}).
		Limit(1).
		ToSql()
	if err != nil {
		return ports.StoredRecord{}, false, fmt.Errorf("build find query: %w", err)
	}

	idea, err := scanIdea(b.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return ports.StoredRecord{}, false, nil
	}
	if err != nil {
		return ports.StoredRecord{}, false, err
	}
	return ports.StoredRecord{RecordID: idea.ID, Idea: idea}, true, nil
}

// Create inserts idea. A concurrent insert of the same key degrades to an update.
func (b *SQLBackend) Create(ctx context.Context, idea domain.Idea) error {
	values, err := b.encode(idea)
	if err != nil {
		return err
	}

	assignments := make([]string, 0, len(ideaColumns)-1)
	for _, col := range ideaColumns[1:] {
		assignments = append(assignments, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	query, args, err := b.builder.
		Insert(b.quotedTable()).
		Columns(ideaColumns...).
		Values(values...).
		Suffix("ON CONFLICT (id) DO UPDATE SET " + strings.Join(assignments, ", ")).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", idea.ID, err)
	}
	return nil
}

func (b *SQLBackend) Update(ctx context.Context, recordID string, idea domain.Idea) error {
	values, err := b.encode(idea)
	if err != nil {
		return err
	}
	set := make(map[string]any, len(ideaColumns)-1)
	for i, col := range ideaColumns[1:] {
		set[col] = values[i+1]
	}

	query, args, err := b.builder.
		Update(b.quotedTable()).
		SetMap(set).
		Where(sq.Eq{"id": recordID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", recordID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s: %w", recordID, domain.ErrNotFound)
	}
	return nil
}

func (b *SQLBackend) listQuery(q ports.ListQuery) sq.SelectBuilder {
	sel := b.builder.
		Select(ideaColumns...).
		From(b.quotedTable()).
		Where(sq.GtOrEq{"score": q.MinScore})
	if !q.CreatedAfter.IsZero() {
		sel = sel.Where(sq.Gt{"created_at": b.dialect.encodeTime(q.CreatedAfter)})
	}

	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	switch q.SortBy {
	case ports.SortByScore:
		sel = sel.OrderBy("score "+direction, "id ASC")
	case ports.SortByCreated:
		sel = sel.OrderBy("created_at "+direction, "id ASC")
	default:
		sel = sel.OrderBy("id ASC")
	}
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}
	return sel
}

func (b *SQLBackend) List(ctx context.Context, q ports.ListQuery) ([]domain.Idea, error) {
	query, args, err := b.listQuery(q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ideas: %w", err)
	}
	defer rows.Close()

	var ideas []domain.Idea
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, err
		}
		ideas = append(ideas, idea)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return ideas, nil
}

func (b *SQLBackend) Count(ctx context.Context) (int, error) {
	query, args, err := b.builder.Select("COUNT(*)").From(b.quotedTable()).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := b.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ideas: %w", err)
	}
	return n, nil
}

func (b *SQLBackend) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query, args, err := b.builder.
		Delete(b.quotedTable()).
		Where(sq.Lt{"created_at": b.dialect.encodeTime(cutoff)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete ideas: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// encode returns column values in ideaColumns order.
func (b *SQLBackend) encode(idea domain.Idea) ([]any, error) {
	tags, err := json.Marshal(idea.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	engagement, err := json.Marshal(idea.Engagement)
	if err != nil {
		return nil, fmt.Errorf("encode engagement: %w", err)
	}
	maker, err := json.Marshal(idea.Maker)
	if err != nil {
		return nil, fmt.Errorf("encode maker: %w", err)
	}

	var sourceDate any
	if idea.SourceDate != nil {
		sourceDate = b.dialect.encodeTime(*idea.SourceDate)
	}

	return []any{
		idea.ID,
		idea.Title,
		idea.Description,
		idea.URL,
		idea.SourceName,
		sourceDate,
		idea.Score,
		string(tags),
		string(engagement),
		string(maker),
		b.dialect.encodeTime(idea.CreatedAt),
		b.dialect.encodeTime(idea.UpdatedAt),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdea(row rowScanner) (domain.Idea, error) {
	var (
		idea                    domain.Idea
		sourceDate              any
		createdAt, updatedAt    any
		tags, engagement, maker string
	)
	err := row.Scan(
		&idea.ID,
		&idea.Title,
		&idea.Description,
		&idea.URL,
		&idea.SourceName,
		&sourceDate,
		&idea.Score,
		&tags,
		&engagement,
		&maker,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Idea{}, err
	}
	if err != nil {
		return domain.Idea{}, fmt.Errorf("scan idea: %w", err)
	}

	if t, ok, err := parseTimeValue(sourceDate); err != nil {
		return domain.Idea{}, fmt.Errorf("idea %s source_date: %w", idea.ID, err)
	} else if ok {
		idea.SourceDate = &t
	}
	if idea.CreatedAt, _, err = parseTimeValue(createdAt); err != nil {
		return domain.Idea{}, fmt.Errorf("idea %s created_at: %w", idea.ID, err)
	}
	if idea.UpdatedAt, _, err = parseTimeValue(updatedAt); err != nil {
		return domain.Idea{}, fmt.Errorf("idea %s updated_at: %w", idea.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &idea.Tags); err != nil {
		return domain.Idea{}, fmt.Errorf("idea %s tags: %w", idea.ID, err)
	}
	if err := json.Unmarshal([]byte(engagement), &idea.Engagement); err != nil {
		return domain.Idea{}, fmt.Errorf("idea %s engagement: %w", idea.ID, err)
	}
	if err := json.Unmarshal([]byte(maker), &idea.Maker); err != nil {
		return domain.Idea{}, fmt.Errorf("idea %s maker: %w", idea.ID, err)
	}
	return idea, nil
}

// parseTimeValue accepts the shapes drivers hand back for timestamp columns.
func parseTimeValue(v any) (time.Time, bool, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return t.UTC(), true, nil
	case string:
		parsed, err := domain.ParseTimestamp(t)
		return parsed.UTC(), err == nil, err
	case []byte:
		parsed, err := domain.ParseTimestamp(string(t))
		return parsed.UTC(), err == nil, err
	default:
		return time.Time{}, false, fmt.Errorf("unsupported time value %T", v)
	}
}
