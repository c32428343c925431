// Package search implements the hybrid query engine: an optional
// rewrite pass, concurrent keyword and vector retrieval, Reciprocal
// Rank Fusion, and source-priority re-weighting.
package search

import "github.com/cerplabs/hybridsearch/internal/rewrite"

// Kind selects which backend(s) a query consults.
type Kind string

const (
	KindHybrid   Kind = "hybrid"
	KindKeyword  Kind = "keyword"
	KindSemantic Kind = "semantic"
)

// rrfConstant is the k in score(d) = sum 1/(k+rank).
const rrfConstant = 60

// fetchMultiplier widens each backend's retrieval beyond the caller's
// limit so the fuser has enough candidates to re-rank from.
const fetchMultiplier = 3

// Filters narrows a search to a subset of catalogued sources or path
// shapes. A nil pointer/slice means unconstrained on that dimension.
type Filters struct {
	Repository   *string
	DirectoryIDs []string
	FolderName   *string
	Extension    *string
}

// merge fills in any zero-valued field of f from suggested, without
// overwriting anything the caller already set. Used to apply a query
// rewriter's suggested filters only where the caller left a gap.
func (f Filters) merge(suggested Filters) Filters {
	out := f
	if out.FolderName == nil {
		out.FolderName = suggested.FolderName
	}
	if out.Extension == nil {
		out.Extension = suggested.Extension
	}
	return out
}

// Query is one hybrid search request.
type Query struct {
	Text    string
	Limit   int
	Kind    Kind
	MinScore float64
	Filters Filters
	Rewrite *rewrite.Rewriter
}

// Result is one ranked hit, field-hydrated from whichever backend(s)
// matched it, matching the boundary layer's result shape.
type Result struct {
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
