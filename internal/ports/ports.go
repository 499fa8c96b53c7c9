package ports

import (
	"context"
	"time"

	"IdeaDigest/internal/domain"
)

// IdeaStore is the keyed upsert store the pipeline writes to and reads back from.
type IdeaStore interface {
	Name() string
	Upsert(ctx context.Context, ideas []domain.Idea) (domain.UpsertOutcome, error)
	Recent(ctx context.Context, days int) ([]domain.Idea, error)
	Top(ctx context.Context, limit int, minScore float64) ([]domain.Idea, error)
	Get(ctx context.Context, id string) (domain.Idea, error)
}

// Pruner trims stores that live on size-limited plans.
type Pruner interface {
	Prune(ctx context.Context, maxRecords, retentionDays int) (int, error)
}

// SortField selects the ordering of a backend list query.
type SortField string

const (
	SortByScore   SortField = "score"
	SortByCreated SortField = "created_at"
)

// ListQuery filters and orders a backend listing.
// Zero CreatedAfter and Limit mean no bound.
type ListQuery struct {
	CreatedAfter time.Time
	MinScore     float64
	SortBy       SortField
	Descending   bool
	Limit        int
}

// StoredRecord is an idea together with the backend's own record identifier.
type StoredRecord struct {
	RecordID string
	Idea     domain.Idea
}

// KeyedBackend is the raw persistence collaborator under the upsert store.
// It knows nothing about insert-vs-update decisions.
type KeyedBackend interface {
	Name() string
	// Check fails when the backend cannot be used at all, e.g. missing credentials.
	Check(ctx context.Context) error
	FindByKey(ctx context.Context, key string) (StoredRecord, bool, error)
	Create(ctx context.Context, idea domain.Idea) error
	Update(ctx context.Context, recordID string, idea domain.Idea) error
	List(ctx context.Context, q ListQuery) ([]domain.Idea, error)
	Count(ctx context.Context) (int, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// DigestGenerator renders the digest for a date from the store.
type DigestGenerator interface {
	Generate(ctx context.Context, req domain.DigestRequest) domain.DigestResult
}

// Notifier streams digest announcements to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, message string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
