package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/ports"
)

// MemoryBackend keeps ideas in process memory. Useful for dry runs and tests.
type MemoryBackend struct {
	mu    sync.RWMutex
	ideas map[string]domain.Idea
}

var _ ports.KeyedBackend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{ideas: map[string]domain.Idea{}}
}

func (m *MemoryBackend) Name() string {
	return "memory"
}

func (m *MemoryBackend) Check(context.Context) error {
	return nil
}

// FindByKey uses the idea key as the record id.
func (m *MemoryBackend) FindByKey(_ context.Context, key string) (ports.StoredRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idea, ok := m.ideas[key]
	if !ok {
		return ports.StoredRecord{}, false, nil
	}
	return ports.StoredRecord{RecordID: key, Idea: idea.Clone()}, true, nil
}

func (m *MemoryBackend) Create(_ context.Context, idea domain.Idea) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ideas[idea.ID] = idea.Clone()
	return nil
}

func (m *MemoryBackend) Update(_ context.Context, recordID string, idea domain.Idea) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ideas[recordID] = idea.Clone()
	return nil
}

func (m *MemoryBackend) List(_ context.Context, q ports.ListQuery) ([]domain.Idea, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Idea, 0, len(m.ideas))
	for _, idea := range m.ideas {
		if !q.CreatedAfter.IsZero() && !idea.CreatedAt.After(q.CreatedAfter) {
			continue
		}
		if idea.Score < q.MinScore {
			continue
		}
		out = append(out, idea.Clone())
	}

	sortIdeas(out, q.SortBy, q.Descending)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryBackend) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ideas), nil
}

func (m *MemoryBackend) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key, idea := range m.ideas {
		if idea.CreatedAt.Before(cutoff) {
			delete(m.ideas, key)
			deleted++
		}
	}
	return deleted, nil
}

// sortIdeas orders by the requested field, breaking ties by key ascending.
func sortIdeas(ideas []domain.Idea, field ports.SortField, desc bool) {
	sort.SliceStable(ideas, func(i, j int) bool {
		a, b := ideas[i], ideas[j]
		var cmp int
		switch field {
		case ports.SortByScore:
			cmp = compareFloat(a.Score, b.Score)
		case ports.SortByCreated:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if cmp != 0 {
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return a.ID < b.ID
	})
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
