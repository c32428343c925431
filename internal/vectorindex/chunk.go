package vectorindex

import (
	"strings"

	"github.com/cerplabs/hybridsearch/pkg/docid"
)

// maxChunkChars caps a chunk's text, matching the document schema's
// word-greedy chunking rule: split on word boundaries, never mid-word,
// with no overlap between consecutive chunks.
const maxChunkChars = 1000

// SourceDocument is a full file's text plus the path metadata that
// becomes VectorChunk metadata, chunk by chunk.
type SourceDocument struct {
	DocID         string
	FilePath      string
	SourceType    string
	SourceID      string
	Repository    string
	FileType      string
	RelativePath  string
	Content       string
}

// Split breaks a document's content into word-greedy chunks capped at
// maxChunkChars, assigning each a chunk ID of doc_id::chunk_<k>.
// Documents at or below the cap become a single chunk.
func Split(doc SourceDocument) []Chunk {
	words := strings.Fields(doc.Content)
	if len(words) == 0 {
		return nil
	}

	var texts []string
	var b strings.Builder
	for _, word := range words {
		candidateLen := b.Len()
		if candidateLen > 0 {
			candidateLen++ // separating space
		}
		candidateLen += len(word)

		if b.Len() > 0 && candidateLen > maxChunkChars {
			texts = append(texts, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		texts = append(texts, b.String())
	}

	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{
			ID:            docid.ChunkID(doc.DocID, i),
			FilePath:      doc.FilePath,
			SourceType:    doc.SourceType,
			SourceID:      doc.SourceID,
			Repository:    doc.Repository,
			FileType:      doc.FileType,
			RelativePath:  doc.RelativePath,
			ChunkIndex:    i,
			TotalChunks:   len(texts),
			Text:          text,
		}
	}
	return chunks
}
