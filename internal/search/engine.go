package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cerplabs/hybridsearch/internal/keywordindex"
	"github.com/cerplabs/hybridsearch/internal/rewrite"
	"github.com/cerplabs/hybridsearch/internal/vectorindex"
)

// rewriteTimeout bounds the optional query-rewrite call per the
// concurrency model's "query rewrite <= 5s" deadline.
const rewriteTimeout = 5 * time.Second

// KeywordBackend is the subset of the bleve-backed index the engine
// needs to run one side of a hybrid search.
type KeywordBackend interface {
	Search(ctx context.Context, q keywordindex.Query) ([]keywordindex.Hit, error)
}

// VectorBackend is the subset of the hnsw-backed index the engine
// needs to run the other side.
type VectorBackend interface {
	Query(ctx context.Context, q vectorindex.Query) ([]vectorindex.Hit, error)
}

// SourceWeights resolves a catalogued source's priority multiplier by
// id, so fusion can re-weight results without importing the full
// source registry.
type SourceWeights interface {
	PriorityWeight(sourceID string) float64
}

// Engine runs the hybrid query algorithm over a keyword and a vector
// backend, fusing their rankings and applying source priority.
type Engine struct {
	keyword KeywordBackend
	vector  VectorBackend
	sources SourceWeights
	logger  *slog.Logger
}

// New builds an Engine. sources may be nil, in which case every result
// carries a priority weight of 1.0.
func New(keyword KeywordBackend, vector VectorBackend, sources SourceWeights, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{keyword: keyword, vector: vector, sources: sources, logger: logger}
}

// Search runs q's algorithm end to end: optional rewrite, concurrent
// retrieval, RRF fusion, priority re-weighting, hydration, and
// truncation to q.Limit.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	kind := q.Kind
	if kind == "" {
		kind = KindHybrid
	}

	keywordText := q.Text
	semanticText := q.Text
	filters := q.Filters
	if q.Rewrite != nil {
		rw := q.Rewrite.Rewrite(ctx, q.Text, rewriteTimeout)
		keywordText = rw.Keywords
		semanticText = rw.SemanticIntent
		filters = filters.merge(suggestedFilters(rw.Filters))
	}

	fetch := limit * fetchMultiplier

	var keywordHits []keywordindex.Hit
	var vectorHits []vectorindex.Hit
	var keywordErr, vectorErr error

	g, gctx := errgroup.WithContext(ctx)
	if kind == KindHybrid || kind == KindKeyword {
		g.Go(func() error {
			keywordHits, keywordErr = e.keyword.Search(gctx, keywordindex.Query{
				Text:    keywordText,
				Filters: toKeywordFilters(filters),
				Limit:   fetch,
			})
			return nil
		})
	}
	if kind == KindHybrid || kind == KindSemantic {
		g.Go(func() error {
			vectorHits, vectorErr = e.vector.Query(gctx, vectorindex.Query{
				Text:    semanticText,
				Filters: toVectorFilters(filters),
				Limit:   fetch,
			})
			return nil
		})
	}
	_ = g.Wait()

	if keywordErr != nil {
		e.logger.Warn("keyword backend failed", slog.String("error", keywordErr.Error()))
		keywordHits = nil
	}
	if vectorErr != nil {
		e.logger.Warn("vector backend failed", slog.String("error", vectorErr.Error()))
		vectorHits = nil
	}

	fused := e.fuse(keywordHits, vectorHits)

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})

	out := make([]Result, 0, limit)
	for _, r := range fused {
		if r.Score < q.MinScore {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// fuse merges keyword and vector hits by Reciprocal Rank Fusion,
// weighting each backend equally, then multiplies each document's
// combined score by its owning source's priority weight.
func (e *Engine) fuse(keywordHits []keywordindex.Hit, vectorHits []vectorindex.Hit) []Result {
	byID := make(map[string]*Result)

	for rank, h := range keywordHits {
		score := 1.0 / float64(rrfConstant+rank+1)
		kScore := h.Score
		byID[h.ID] = &Result{
			ID:           h.ID,
			FilePath:     h.FilePath,
			RelativePath: h.RelativePath,
			Source:       h.Repository,
			Score:        score,
			KeywordScore: &kScore,
			Snippet:      h.Snippet,
			FileType:     h.Extension,
		}
	}

	for rank, h := range vectorHits {
		score := 1.0 / float64(rrfConstant+rank+1)
		distance := h.Distance
		if existing, ok := byID[h.ID]; ok {
			existing.Score += score
			existing.SemanticDistance = &distance
			if existing.FilePath == "" {
				existing.FilePath = h.FilePath
			}
			if existing.RelativePath == "" {
				existing.RelativePath = h.Metadata["relative_path"]
			}
			if existing.Source == "" {
				existing.Source = h.Metadata["repository"]
			}
			if existing.Snippet == "" {
				existing.Snippet = h.ChunkText
			}
			if existing.FileType == "" {
				existing.FileType = h.Metadata["extension"]
			}
			continue
		}
		byID[h.ID] = &Result{
			ID:               h.ID,
			FilePath:         h.FilePath,
			RelativePath:     h.Metadata["relative_path"],
			Source:           h.Metadata["repository"],
			Score:            score,
			SemanticDistance: &distance,
			Snippet:          h.ChunkText,
			FileType:         h.Metadata["extension"],
		}
	}

	results := make([]Result, 0, len(byID))
	for id, r := range byID {
		weight := 1.0
		if e.sources != nil {
			weight = e.sources.PriorityWeight(sourceIDOf(keywordHits, vectorHits, id))
		}
		r.Score *= weight
		results = append(results, *r)
	}
	return results
}

// sourceIDOf looks up the source id a fused document belongs to,
// preferring the keyword side, for priority-weight resolution.
func sourceIDOf(keywordHits []keywordindex.Hit, vectorHits []vectorindex.Hit, id string) string {
	for _, h := range keywordHits {
		if h.ID == id {
			return h.SourceID
		}
	}
	for _, h := range vectorHits {
		if h.ID == id {
			return h.Metadata["source_id"]
		}
	}
	return ""
}

// suggestedFilters adapts a rewriter's suggested filter shape (a
// multi-valued extension list) to the engine's single-valued Extension
// field, taking the first suggested extension if any were given.
func suggestedFilters(f rewrite.Filters) Filters {
	out := Filters{FolderName: f.FolderName}
	if len(f.Extensions) > 0 {
		out.Extension = &f.Extensions[0]
	}
	return out
}

func toKeywordFilters(f Filters) []keywordindex.Filter {
	var out []keywordindex.Filter
	if f.Repository != nil {
		out = append(out, keywordindex.Filter{Field: "repository", Values: []string{*f.Repository}})
	}
	if len(f.DirectoryIDs) > 0 {
		out = append(out, keywordindex.Filter{Field: "source_id", Values: f.DirectoryIDs})
	}
	if f.FolderName != nil {
		out = append(out, keywordindex.Filter{Field: "folder_name", Values: []string{*f.FolderName}})
	}
	if f.Extension != nil {
		out = append(out, keywordindex.Filter{Field: "extension", Values: []string{*f.Extension}})
	}
	return out
}

func toVectorFilters(f Filters) []vectorindex.Filter {
	var out []vectorindex.Filter
	if f.Repository != nil {
		out = append(out, vectorindex.Filter{Field: "repository", Values: []string{*f.Repository}})
	}
	if len(f.DirectoryIDs) > 0 {
		out = append(out, vectorindex.Filter{Field: "source_id", Values: f.DirectoryIDs})
	}
	if f.FolderName != nil {
		out = append(out, vectorindex.Filter{Field: "folder_name", Values: []string{*f.FolderName}})
	}
	if f.Extension != nil {
		out = append(out, vectorindex.Filter{Field: "extension", Values: []string{*f.Extension}})
	}
	return out
}
