package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/ports"
)

// ErrMisconfigured marks a backend that cannot be used at all.
var ErrMisconfigured = errors.New("storage backend misconfigured")

// KeyedStore layers insert-vs-update decisions and per-record failure
// isolation over a raw backend. Lookups and writes are issued sequentially
// by a single caller, so no per-key locking is needed.
type KeyedStore struct {
	backend ports.KeyedBackend
	logger  *slog.Logger
	now     func() time.Time
}

var (
	_ ports.IdeaStore = (*KeyedStore)(nil)
	_ ports.Pruner    = (*KeyedStore)(nil)
)

// NewKeyedStore wraps backend. now defaults to time.Now.
func NewKeyedStore(backend ports.KeyedBackend, logger *slog.Logger, now func() time.Time) *KeyedStore {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &KeyedStore{backend: backend, logger: logger, now: now}
}

// Name reports the backend name.
func (s *KeyedStore) Name() string {
	if s.backend == nil {
		return "none"
	}
	return s.backend.Name()
}

func (s *KeyedStore) check(ctx context.Context) error {
	if s.backend == nil {
		return fmt.Errorf("%w: no backend", ErrMisconfigured)
	}
	if err := s.backend.Check(ctx); err != nil {
		if errors.Is(err, ErrMisconfigured) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrMisconfigured, s.backend.Name(), err)
	}
	return nil
}

// Upsert writes every idea keyed by ID. The first sighting of a key counts as
// an insert and later ones as updates. A failed record never stops the batch;
// only an unusable backend is returned as an error, before any record is tried.
func (s *KeyedStore) Upsert(ctx context.Context, ideas []domain.Idea) (domain.UpsertOutcome, error) {
	var outcome domain.UpsertOutcome
	if len(ideas) == 0 {
		return outcome, nil
	}
	if err := s.check(ctx); err != nil {
		return outcome, err
	}

	for i, idea := range ideas {
		if err := ctx.Err(); err != nil {
			for _, rest := range ideas[i:] {
				outcome.RecordFailure(rest.ID, err)
			}
			break
		}

		inserted, err := s.upsertOne(ctx, idea)
		switch {
		case err != nil:
			s.logger.Warn("upsert failed", "id", idea.ID, "error", err)
			outcome.RecordFailure(idea.ID, err)
		case inserted:
			outcome.Inserted++
		default:
			outcome.Updated++
		}
	}

	s.logger.Info("upsert complete",
		"backend", s.backend.Name(),
		"inserted", outcome.Inserted,
		"updated", outcome.Updated,
		"failed", outcome.Failed,
	)
	return outcome, nil
}

func (s *KeyedStore) upsertOne(ctx context.Context, idea domain.Idea) (bool, error) {
	if err := idea.Validate(); err != nil {
		return false, err
	}

	existing, found, err := s.backend.FindByKey(ctx, idea.ID)
	if err != nil {
		return false, fmt.Errorf("lookup: %w", err)
	}
	if idea.UpdatedAt.IsZero() {
		idea.UpdatedAt = s.now()
	}
	if found {
		// created_at marks the first sighting
		if !existing.Idea.CreatedAt.IsZero() {
			idea.CreatedAt = existing.Idea.CreatedAt
		}
		if err := s.backend.Update(ctx, existing.RecordID, idea); err != nil {
			return false, fmt.Errorf("update: %w", err)
		}
		return false, nil
	}
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = s.now()
	}
	if err := s.backend.Create(ctx, idea); err != nil {
		return false, fmt.Errorf("create: %w", err)
	}
	return true, nil
}

// Recent returns ideas created within the last days, newest first.
// days <= 0 returns everything.
func (s *KeyedStore) Recent(ctx context.Context, days int) ([]domain.Idea, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	q := ports.ListQuery{SortBy: ports.SortByCreated, Descending: true}
	if days > 0 {
		q.CreatedAfter = s.now().Add(-time.Duration(days) * 24 * time.Hour)
	}
	ideas, err := s.backend.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	return ideas, nil
}

// Top returns up to limit ideas with score >= minScore, best first.
// limit <= 0 means no limit.
func (s *KeyedStore) Top(ctx context.Context, limit int, minScore float64) ([]domain.Idea, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	ideas, err := s.backend.List(ctx, ports.ListQuery{
		MinScore:   minScore,
		SortBy:     ports.SortByScore,
		Descending: true,
		Limit:      max(limit, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("list top: %w", err)
	}
	return ideas, nil
}

// Get looks an idea up by key. Misses wrap domain.ErrNotFound.
func (s *KeyedStore) Get(ctx context.Context, id string) (domain.Idea, error) {
	if err := s.check(ctx); err != nil {
		return domain.Idea{}, err
	}
	rec, found, err := s.backend.FindByKey(ctx, id)
	if err != nil {
		return domain.Idea{}, fmt.Errorf("lookup %s: %w", id, err)
	}
	if !found {
		return domain.Idea{}, fmt.Errorf("idea %s: %w", id, domain.ErrNotFound)
	}
	return rec.Idea, nil
}

// Prune deletes ideas older than retentionDays, but only once the store holds
// more than maxRecords. It returns the number of deleted ideas.
func (s *KeyedStore) Prune(ctx context.Context, maxRecords, retentionDays int) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	count, err := s.backend.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if count <= maxRecords {
		s.logger.Debug("prune not needed", "count", count, "max", maxRecords)
		return 0, nil
	}

	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	deleted, err := s.backend.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("delete older than %s: %w", cutoff.Format(time.DateOnly), err)
	}

	s.logger.Info("pruned store",
		"backend", s.backend.Name(),
		"before", count,
		"deleted", deleted,
		"retention_days", retentionDays,
	)
	if count-deleted > maxRecords {
		s.logger.Warn("store still above limit after prune", "remaining", count-deleted, "max", maxRecords)
	}
	return deleted, nil
}
