package vectorindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerplabs/hybridsearch/internal/embed"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open("", embed.NewStaticEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func widgetChunks() []Chunk {
	return Split(SourceDocument{
		DocID: "widget", FilePath: "/repo/widget.go", SourceID: "repo",
		Content: "widget lifecycle manager handles creation and teardown of widgets",
	})
}

func rocketChunks() []Chunk {
	return Split(SourceDocument{
		DocID: "rocket", FilePath: "/repo/rocket.go", SourceID: "repo",
		Content: "rocket engine ignition sequence and fuel telemetry",
	})
}

func TestUpsertAndQueryRanksSemanticMatchFirst(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), widgetChunks()))
	require.NoError(t, idx.Upsert(context.Background(), rocketChunks()))

	hits, err := idx.Query(context.Background(), Query{Text: "widget creation and teardown", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "/repo/widget.go", hits[0].FilePath)
}

func TestQueryDedupesToOneHitPerFile(t *testing.T) {
	idx := openTestIndex(t)
	long := ""
	for i := 0; i < 400; i++ {
		long += "widget lifecycle manager handles creation and teardown of widgets. "
	}
	chunks := Split(SourceDocument{DocID: "widget", FilePath: "/repo/widget.go", Content: long})
	require.Greater(t, len(chunks), 1, "fixture should produce multiple chunks")
	require.NoError(t, idx.Upsert(context.Background(), chunks))

	hits, err := idx.Query(context.Background(), Query{Text: "widget teardown", Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestQueryAppliesFilters(t *testing.T) {
	idx := openTestIndex(t)
	a := Split(SourceDocument{DocID: "a", FilePath: "/a.go", SourceID: "repo-a", Content: "widget lifecycle manager"})
	b := Split(SourceDocument{DocID: "b", FilePath: "/b.go", SourceID: "repo-b", Content: "widget lifecycle manager"})
	require.NoError(t, idx.Upsert(context.Background(), a))
	require.NoError(t, idx.Upsert(context.Background(), b))

	hits, err := idx.Query(context.Background(), Query{
		Text:    "widget lifecycle",
		Filters: []Filter{{Field: "source_id", Values: []string{"repo-a"}}},
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/a.go", hits[0].FilePath)
}

func TestDeleteByFileRemovesAllItsChunks(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), widgetChunks()))
	require.NoError(t, idx.Upsert(context.Background(), rocketChunks()))

	require.NoError(t, idx.DeleteByFile("/repo/widget.go"))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.EqualValues(t, len(rocketChunks()), count)

	hits, err := idx.Query(context.Background(), Query{Text: "widget teardown", Limit: 5})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "/repo/widget.go", h.FilePath)
	}
}

func TestDeleteAllClearsIndex(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), widgetChunks()))
	require.NoError(t, idx.DeleteAll())

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReupsertSameChunkIDReplacesVector(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), widgetChunks()))
	require.NoError(t, idx.Upsert(context.Background(), widgetChunks()))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.EqualValues(t, len(widgetChunks()), count, "re-upserting the same chunk ids must not grow the live count")
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")

	idx, err := Open(path, embed.NewStaticEmbedder())
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), widgetChunks()))
	require.NoError(t, idx.Close())

	reopened, err := Open(path, embed.NewStaticEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	count, err := reopened.Count()
	require.NoError(t, err)
	assert.EqualValues(t, len(widgetChunks()), count)

	hits, err := reopened.Query(context.Background(), Query{Text: "widget teardown", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "/repo/widget.go", hits[0].FilePath)
}

func TestQueryEmptyTextReturnsNoHits(t *testing.T) {
	idx := openTestIndex(t)
	hits, err := idx.Query(context.Background(), Query{Text: "  "})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestModelNameAndDimensions(t *testing.T) {
	idx := openTestIndex(t)
	assert.Equal(t, "static", idx.ModelName())
	assert.Equal(t, embed.Dimensions, idx.Dimensions())
}
