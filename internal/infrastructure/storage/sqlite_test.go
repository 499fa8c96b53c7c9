package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/ports"
)

func openTestSQLite(t *testing.T, path string) *SQLBackend {
	t.Helper()
	backend, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestSQLiteIdempotencySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ideas.db")
	ctx := context.Background()
	batch := []domain.Idea{testIdea("hn_1", 0.4, storeNow), testIdea("hn_2", 0.6, storeNow)}

	first := openTestSQLite(t, path)
	out, err := NewKeyedStore(first, quietLogger(), fixedNow).Upsert(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Inserted)
	require.NoError(t, first.Close())

	second := openTestSQLite(t, path)
	store := NewKeyedStore(second, quietLogger(), fixedNow)
	for pass := 0; pass < 2; pass++ {
		out, err = store.Upsert(ctx, batch)
		require.NoError(t, err)
		assert.Zero(t, out.Inserted)
		assert.Equal(t, 2, out.Updated)
	}

	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteRoundTripsAllFields(t *testing.T) {
	backend := openTestSQLite(t, filepath.Join(t.TempDir(), "ideas.db"))
	ctx := context.Background()

	posted := time.Date(2025, time.June, 30, 7, 15, 0, 123000000, time.UTC)
	idea := testIdea("ph_launch", 0.625, storeNow)
	idea.SourceName = "producthunt"
	idea.SourceDate = &posted
	idea.Tags = domain.NewTagSet("startup", "ai-ml")
	idea.Engagement = domain.Engagement{Votes: domain.IntPtr(300), Comments: domain.IntPtr(12)}
	idea.Maker = domain.Maker{Name: "Dana", Username: "dana", URL: "https://www.producthunt.com/@dana"}

	require.NoError(t, backend.Create(ctx, idea))

	rec, found, err := backend.FindByKey(ctx, "ph_launch")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ph_launch", rec.RecordID)

	if diff := cmp.Diff(idea, rec.Idea, cmp.AllowUnexported(domain.TagSet{})); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	_, found, err = backend.FindByKey(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteListOrderingAndFilters(t *testing.T) {
	backend := openTestSQLite(t, filepath.Join(t.TempDir(), "ideas.db"))
	store := NewKeyedStore(backend, quietLogger(), fixedNow)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []domain.Idea{
		testIdea("zeta", 0.9, storeNow.Add(-time.Hour)),
		testIdea("alpha", 0.9, storeNow.Add(-2*time.Hour)),
		testIdea("low", 0.1, storeNow.Add(-3*time.Hour)),
		testIdea("old", 0.5, storeNow.Add(-20*24*time.Hour)),
	})
	require.NoError(t, err)

	top, err := store.Top(ctx, 2, 0.2)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, ids(top))

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "low"}, ids(recent))

	deleted, err := store.Prune(ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	left, err := backend.List(ctx, ports.ListQuery{SortBy: ports.SortByScore})
	require.NoError(t, err)
	assert.Equal(t, []string{"low", "alpha", "zeta"}, ids(left))
}

func TestSQLiteUpdateMissingRecord(t *testing.T) {
	backend := openTestSQLite(t, filepath.Join(t.TempDir(), "ideas.db"))

	err := backend.Update(context.Background(), "ghost", testIdea("ghost", 0.1, storeNow))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	assert.ErrorIs(t, err, ErrMisconfigured)
}
