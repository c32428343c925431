package metadata

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertAndGetLastIndexed(t *testing.T) {
	store := openTestStore(t)

	fm := FileMetadata{
		Path: "/repos/demo/main.go", SourceRef: "demo",
		ContentHash: "abc123", SizeBytes: 120, ModTimeUnix: 100,
		IndexedKinds: []string{"keyword", "vector"},
		CreatedAt:    100, UpdatedAt: 100,
	}
	require.NoError(t, store.Upsert(fm))

	got, err := store.GetLastIndexed(fm.Path)
	require.NoError(t, err)
	assert.Equal(t, fm.SourceRef, got.SourceRef)
	assert.Equal(t, []string{"keyword", "vector"}, got.IndexedKinds)
}

func TestGetLastIndexedMissingReturnsNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetLastIndexed("/nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_201_FILE_NOT_FOUND")
}

func TestUpsertBatchPreservesCreatedAtAcrossUpdates(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.UpsertBatch([]FileMetadata{
		{Path: "/a", SourceRef: "s", SizeBytes: 1, ModTimeUnix: 1, CreatedAt: 10, UpdatedAt: 10},
	}))
	require.NoError(t, store.UpsertBatch([]FileMetadata{
		{Path: "/a", SourceRef: "s", SizeBytes: 2, ModTimeUnix: 2, CreatedAt: 10, UpdatedAt: 20},
	}))

	got, err := store.GetLastIndexed("/a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.SizeBytes)
}

func TestRemoveAndRemoveBySource(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.UpsertBatch([]FileMetadata{
		{Path: "/a", SourceRef: "s1", CreatedAt: 1, UpdatedAt: 1},
		{Path: "/b", SourceRef: "s1", CreatedAt: 1, UpdatedAt: 1},
		{Path: "/c", SourceRef: "s2", CreatedAt: 1, UpdatedAt: 1},
	}))

	require.NoError(t, store.Remove("/a"))
	_, err := store.GetLastIndexed("/a")
	require.Error(t, err)

	count, err := store.RemoveBySource("s1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	counts, err := store.CountBySource()
	require.NoError(t, err)
	assert.Equal(t, 1, counts["s2"])
	assert.NotContains(t, counts, "s1")
}

func TestListIndexedFiltersBySource(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.UpsertBatch([]FileMetadata{
		{Path: "/a", SourceRef: "s1", CreatedAt: 1, UpdatedAt: 1},
		{Path: "/b", SourceRef: "s2", CreatedAt: 1, UpdatedAt: 1},
	}))

	all, err := store.ListIndexed("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := store.ListIndexed("s1")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "/a", filtered[0].Path)
}

func TestRecordSourceIndexingAndGetStats(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.RecordSourceIndexing("demo", "keyword", 1.5, 10, 2048, true))
	require.NoError(t, store.RecordSourceIndexing("demo", "keyword", 0.5, 12, 4096, false))

	stats, err := store.GetSourceStats("demo", "keyword")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].TotalRuns)
	assert.Equal(t, 12, stats[0].LastFileCount)
	assert.False(t, stats[0].LastRunWasInitial)
}

func TestRecordSearchAndStats(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.RecordSearch(12.5))
	require.NoError(t, store.RecordSearch(7.5))
	require.NoError(t, store.UpsertBatch([]FileMetadata{{Path: "/a", SourceRef: "s", CreatedAt: 1, UpdatedAt: 1}}))

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 2, stats.SearchCount)
	assert.InDelta(t, 10.0, stats.AvgSearchLatency, 0.01)
}

func TestLastIndexTimeRoundTrip(t *testing.T) {
	store := openTestStore(t)

	ts, err := store.GetLastIndexTime("global")
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, store.SetLastIndexTime("global", 1700000000))
	ts, err = store.GetLastIndexTime("global")
	require.NoError(t, err)
	assert.EqualValues(t, 1700000000, ts)

	require.NoError(t, store.ClearSystemMetadata())
	ts, err = store.GetLastIndexTime("global")
	require.NoError(t, err)
	assert.Zero(t, ts)
}

func TestMetadataValueRoundTrip(t *testing.T) {
	store := openTestStore(t)

	value, err := store.GetMetadataValue("vector_index_model")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.SetMetadataValue("vector_index_model", "static-v1"))
	value, err = store.GetMetadataValue("vector_index_model")
	require.NoError(t, err)
	assert.Equal(t, "static-v1", value)

	require.NoError(t, store.SetMetadataValue("vector_index_model", "static-v2"))
	value, err = store.GetMetadataValue("vector_index_model")
	require.NoError(t, err)
	assert.Equal(t, "static-v2", value)
}

func TestMigrationsAreIdempotentAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store2, err := Open(path)
	require.NoError(t, err)
	defer store2.Close()

	stats, err := store2.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalFiles)
}
