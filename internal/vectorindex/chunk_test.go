package vectorindex

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortDocumentIsSingleChunk(t *testing.T) {
	chunks := Split(SourceDocument{DocID: "doc1", FilePath: "/a.go", Content: "package a\n\nfunc f() {}"})
	require.Len(t, chunks, 1)
	assert.Equal(t, "doc1::chunk_0", chunks[0].ID)
	assert.Equal(t, 1, chunks[0].TotalChunks)
}

func TestSplitLongDocumentCapsChunkSize(t *testing.T) {
	word := "abcdefghij " // 11 chars incl. space
	content := strings.Repeat(word, 500)
	chunks := Split(SourceDocument{DocID: "doc2", FilePath: "/b.go", Content: content})

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), maxChunkChars)
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, len(chunks), c.TotalChunks)
		assert.Equal(t, "doc2::chunk_"+strconv.Itoa(i), c.ID)
	}
}

func TestSplitEmptyContentProducesNoChunks(t *testing.T) {
	chunks := Split(SourceDocument{DocID: "doc3", FilePath: "/c.go", Content: "   "})
	assert.Empty(t, chunks)
}
