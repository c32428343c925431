// Package supervisor owns global start-up and teardown and exposes the
// small synchronous facade the boundary layer drives: search, stats,
// reindex, stop_indexing, discover, add_sources, and per-source
// enable/disable/remove. Lifecycle follows construct dependencies,
// start background workers, accept requests, tear down cleanly on
// cancellation, generalized from a single-project facade into one
// over many catalogued sources.
package supervisor

import (
	"time"
)

// SearchRequest mirrors the boundary layer's search operation.
type SearchRequest struct {
	Query    string
	Limit    int
	MinScore float64
	Kind     string
	Filters  SearchFilters
}

// SearchFilters is the caller-supplied filter set for a search.
type SearchFilters struct {
	Repository   *string
	DirectoryIDs []string
	FolderName   *string
	Extension    *string
}

// SearchResult is one ranked hit, matching the boundary result shape.
type SearchResult struct {
	ID               string
	FilePath         string
	RelativePath     string
	Source           string
	Score            float64
	KeywordScore     *float64
	SemanticDistance *float32
	Snippet          string
	FileType         string
}

// SourceStats summarizes one catalogued source's indexing state for
// Stats().
type SourceStats struct {
	SourceID          string
	FileCount         int
	LastIndexedAt      time.Time
	LastDurationSeconds float64
}

// Stats is the aggregate view returned by Stats().
type Stats struct {
	KeywordDocuments uint64
	VectorChunks     int
	IsIndexing       bool
	LastIndexTime    *time.Time
	PerSource        []SourceStats
}

// IndexInfo reports the embedding model the vector index was last
// built with versus the model the running configuration would use,
// so a caller can detect an incompatible index before querying it.
type IndexInfo struct {
	IndexModel       string
	IndexDimensions  int
	CurrentModel     string
	CurrentDimensions int
	Compatible       bool
}

// AddSourceRequest describes one new catalogued source.
type AddSourceRequest struct {
	ID           string
	Kind         string
	Name         string
	Path         string
	Priority     string
}
