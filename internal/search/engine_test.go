package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerplabs/hybridsearch/internal/keywordindex"
	"github.com/cerplabs/hybridsearch/internal/vectorindex"
)

type fakeKeyword struct {
	hits []keywordindex.Hit
	err  error
	got  keywordindex.Query
}

func (f *fakeKeyword) Search(ctx context.Context, q keywordindex.Query) ([]keywordindex.Hit, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeVector struct {
	hits []vectorindex.Hit
	err  error
	got  vectorindex.Query
}

func (f *fakeVector) Query(ctx context.Context, q vectorindex.Query) ([]vectorindex.Hit, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeWeights struct {
	weights map[string]float64
}

func (f *fakeWeights) PriorityWeight(id string) float64 {
	if w, ok := f.weights[id]; ok {
		return w
	}
	return 1.0
}

func TestSearchHybridFusesAndOrdersByRRF(t *testing.T) {
	kw := &fakeKeyword{hits: []keywordindex.Hit{
		{ID: "a", Score: 0.9, FilePath: "/r/a.go", RelativePath: "a.go", Repository: "r"},
		{ID: "b", Score: 0.5, FilePath: "/r/b.go", RelativePath: "b.go", Repository: "r"},
	}}
	vec := &fakeVector{hits: []vectorindex.Hit{
		{ID: "b", FilePath: "/r/b.go", Distance: 0.1, Metadata: map[string]string{"relative_path": "b.go", "repository": "r"}},
		{ID: "c", FilePath: "/r/c.go", Distance: 0.2, Metadata: map[string]string{"relative_path": "c.go", "repository": "r"}},
	}}

	e := New(kw, vec, nil, nil)
	results, err := e.Search(context.Background(), Query{Text: "widget", Limit: 10, Kind: KindHybrid})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// b appears in both backends (rank 2 keyword + rank 1 vector), so it
	// should outrank a and c which each appear in only one backend.
	assert.Equal(t, "b", results[0].ID)
	assert.NotNil(t, results[0].KeywordScore)
	assert.NotNil(t, results[0].SemanticDistance)
}

func TestSearchDegradesToKeywordOnlyWhenVectorFails(t *testing.T) {
	kw := &fakeKeyword{hits: []keywordindex.Hit{
		{ID: "a", Score: 0.9, FilePath: "/r/a.go", RelativePath: "a.go"},
	}}
	vec := &fakeVector{err: errors.New("backend unavailable")}

	e := New(kw, vec, nil, nil)
	results, err := e.Search(context.Background(), Query{Text: "widget", Limit: 10, Kind: KindHybrid})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Nil(t, results[0].SemanticDistance)
}

func TestSearchReturnsEmptyWhenBothBackendsFail(t *testing.T) {
	kw := &fakeKeyword{err: errors.New("keyword down")}
	vec := &fakeVector{err: errors.New("vector down")}

	e := New(kw, vec, nil, nil)
	results, err := e.Search(context.Background(), Query{Text: "widget", Limit: 10, Kind: KindHybrid})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchKeywordOnlyModeSkipsVectorBackend(t *testing.T) {
	kw := &fakeKeyword{hits: []keywordindex.Hit{{ID: "a", Score: 1}}}
	vec := &fakeVector{}

	e := New(kw, vec, nil, nil)
	results, err := e.Search(context.Background(), Query{Text: "widget", Limit: 10, Kind: KindKeyword})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].SemanticDistance)
}

func TestSearchAppliesSourcePriorityWeight(t *testing.T) {
	kw := &fakeKeyword{hits: []keywordindex.Hit{
		{ID: "a", Score: 1.0, SourceID: "low-src"},
		{ID: "b", Score: 1.0, SourceID: "high-src"},
	}}
	vec := &fakeVector{}
	weights := &fakeWeights{weights: map[string]float64{"low-src": 0.5, "high-src": 2.0}}

	e := New(kw, vec, weights, nil)
	results, err := e.Search(context.Background(), Query{Text: "widget", Limit: 10, Kind: KindKeyword})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].ID, "higher-priority source should rank first despite identical base RRF score")
}

func TestSearchTranslatesFiltersToBothBackends(t *testing.T) {
	kw := &fakeKeyword{}
	vec := &fakeVector{}
	repo := "myrepo"
	ext := ".go"

	e := New(kw, vec, nil, nil)
	_, err := e.Search(context.Background(), Query{
		Text:  "widget",
		Limit: 5,
		Kind:  KindHybrid,
		Filters: Filters{
			Repository:   &repo,
			DirectoryIDs: []string{"dir-1", "dir-2"},
			Extension:    &ext,
		},
	})
	require.NoError(t, err)

	assertHasFilter(t, kw.got.Filters, "repository", []string{"myrepo"})
	assertHasFilter(t, kw.got.Filters, "source_id", []string{"dir-1", "dir-2"})
	assertHasFilter(t, kw.got.Filters, "extension", []string{".go"})
}

func assertHasFilter(t *testing.T, filters []keywordindex.Filter, field string, values []string) {
	t.Helper()
	for _, f := range filters {
		if f.Field == field {
			assert.Equal(t, values, f.Values)
			return
		}
	}
	t.Fatalf("expected filter on field %q, got %+v", field, filters)
}
