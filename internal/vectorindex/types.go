package vectorindex

import (
	"fmt"
	"path"
)

// Chunk is one embeddable unit of a document: a word-greedy slice of
// its text plus enough denormalized path metadata to support
// query-time filtering without a join back to file metadata.
type Chunk struct {
	ID           string
	FilePath     string
	SourceType   string
	SourceID     string
	Repository   string
	FileType     string
	RelativePath string
	ChunkIndex   int
	TotalChunks  int
	Text         string
}

// Filter is a single field-equality constraint. Values are OR'd
// together; Filters in a Query are AND'd.
type Filter struct {
	Field  string
	Values []string
}

// Query describes a nearest-neighbour search request.
type Query struct {
	Text    string
	Filters []Filter
	Limit   int
}

// Hit is one result, deduplicated to at most one per file. Distance is
// returned raw: fusion consumes ranks, not the distance magnitude, so
// this adapter does not convert it to a similarity score.
type Hit struct {
	ID        string
	FilePath  string
	Distance  float32
	Metadata  map[string]string
	ChunkText string
}

// ErrDimensionMismatch reports a vector whose length doesn't match the
// index's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// metadataOf projects a chunk's filterable fields into a plain map for
// Hit.Metadata and for filter matching.
func metadataOf(c storedChunk) map[string]string {
	return map[string]string{
		"file_path":     c.FilePath,
		"source_type":   c.SourceType,
		"source_id":     c.SourceID,
		"repository":    c.Repository,
		"file_type":     c.FileType,
		"relative_path": c.RelativePath,
		"extension":     path.Ext(c.RelativePath),
		"folder_name":   path.Base(path.Dir(c.RelativePath)),
	}
}
