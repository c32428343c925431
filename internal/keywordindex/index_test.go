package keywordindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestUpsertAndSearchRanksFileNameAboveContent(t *testing.T) {
	idx := openTestIndex(t)

	docs := []Document{
		{
			ID: "a", FilePath: "/repo/widget.go", FileName: "widget.go",
			RelativePath: "widget.go", Extension: ".go", SourceID: "repo",
			Content: "package repo\n\nfunc helper() {}\n", LastModified: time.Now(),
		},
		{
			ID: "b", FilePath: "/repo/other.go", FileName: "other.go",
			RelativePath: "other.go", Extension: ".go", SourceID: "repo",
			Content: "package repo\n\n// widget is mentioned here in prose\nfunc other() {}\n", LastModified: time.Now(),
		},
	}
	require.NoError(t, idx.Upsert(context.Background(), docs))

	hits, err := idx.Search(context.Background(), Query{Text: "widget", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a", hits[0].ID, "file name match should outrank a content-only mention")
}

func TestSearchAppliesFilters(t *testing.T) {
	idx := openTestIndex(t)
	docs := []Document{
		{ID: "a", FileName: "main.go", Content: "package main", SourceID: "repo-a"},
		{ID: "b", FileName: "main.go", Content: "package main", SourceID: "repo-b"},
	}
	require.NoError(t, idx.Upsert(context.Background(), docs))

	hits, err := idx.Search(context.Background(), Query{
		Text:    "package",
		Filters: []Filter{{Field: "source_id", Values: []string{"repo-a"}}},
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestDeleteAndCount(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), []Document{
		{ID: "a", FileName: "a.go", Content: "package a"},
		{ID: "b", FileName: "b.go", Content: "package b"},
	}))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	require.NoError(t, idx.Delete("a"))
	count, err = idx.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDeleteAll(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), []Document{
		{ID: "a", FileName: "a.go", Content: "package a"},
		{ID: "b", FileName: "b.go", Content: "package b"},
	}))

	require.NoError(t, idx.DeleteAll())
	count, err := idx.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSearchEmptyQueryReturnsNoHits(t *testing.T) {
	idx := openTestIndex(t)
	hits, err := idx.Search(context.Background(), Query{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestTokenizeCodeSplitsIdentifiers(t *testing.T) {
	assert.ElementsMatch(t, []string{"get", "user", "by", "id"}, tokenizeCode("getUserById"))
	assert.ElementsMatch(t, []string{"http", "handler"}, tokenizeCode("HTTPHandler"))
	assert.ElementsMatch(t, []string{"parse", "input", "file"}, tokenizeCode("parse_input_file"))
}
