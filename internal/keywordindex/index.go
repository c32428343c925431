// Package keywordindex adapts bleve, an embedded inverted-index
// engine, to the hybrid search system's KeywordIndex contract:
// schema-configured upsert/delete, filtered search, and document
// counting.
package keywordindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const (
	tokenizerName = "hybridsearch_code_tokenizer"
	analyzerName  = "hybridsearch_code_analyzer"
)

// searchableFields lists the schema's searchable fields in priority
// order (highest first) along with the boost each receives, so a
// single bleve query approximates the fixed ranking order.
var searchableFields = []struct {
	field string
	boost float64
}{
	{"file_name", 8.0},
	{"relative_path", 4.0},
	{"folder_name", 2.0},
	{"directory_path", 1.5},
	{"content", 1.0},
}

func init() {
	_ = registry.RegisterTokenizer(tokenizerName, func(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
		return codeTokenizer{}, nil
	})
}

type codeTokenizer struct{}

func (codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := tokenizeCode(text)
	stream := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		stream = append(stream, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		if end <= len(text) {
			offset = end
		}
	}
	return stream
}

// Index wraps a bleve.Index configured per the KeywordDocument schema.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

// Open creates or opens a bleve index at path. An empty path yields an
// in-memory index, used for tests and ephemeral sources.
func Open(path string) (*Index, error) {
	m, err := buildMapping()
	if err != nil {
		return nil, fmt.Errorf("build index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	return &Index{index: idx, path: path}, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     tokenizerName,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = analyzerName

	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = analyzerName
	for _, f := range searchableFields {
		doc.AddFieldMappingsAt(f.field, text)
	}

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	for _, field := range []string{"file_path", "extension", "repository", "source_type", "source_id"} {
		doc.AddFieldMappingsAt(field, keyword)
	}

	im.DefaultMapping = doc
	return im, nil
}

// Close releases the underlying bleve index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.index.Close()
}

type bleveDoc struct {
	FilePath      string  `json:"file_path"`
	FileName      string  `json:"file_name"`
	FolderName    string  `json:"folder_name"`
	DirectoryPath string  `json:"directory_path"`
	RelativePath  string  `json:"relative_path"`
	Extension     string  `json:"extension"`
	SourceType    string  `json:"source_type"`
	SourceID      string  `json:"source_id"`
	Repository    string  `json:"repository"`
	Content       string  `json:"content"`
	LastModified  int64   `json:"last_modified"`
	Size          int64   `json:"size"`
}

// Upsert indexes or re-indexes a batch of documents in one bleve batch,
// which bleve applies synchronously, satisfying AwaitQuiescence.
func (idx *Index) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	batch := idx.index.NewBatch()
	for _, d := range docs {
		content := d.Content
		if len(content) > maxContentChars {
			content = content[:maxContentChars]
		}
		bd := bleveDoc{
			FilePath:      d.FilePath,
			FileName:      d.FileName,
			FolderName:    d.FolderName,
			DirectoryPath: d.DirectoryPath,
			RelativePath:  d.RelativePath,
			Extension:     d.Extension,
			SourceType:    d.SourceType,
			SourceID:      d.SourceID,
			Repository:    d.Repository,
			Content:       content,
			LastModified:  d.LastModified.Unix(),
			Size:          d.Size,
		}
		if err := batch.Index(d.ID, bd); err != nil {
			return fmt.Errorf("index document %s: %w", d.ID, err)
		}
	}

	if err := idx.index.Batch(batch); err != nil {
		return fmt.Errorf("execute index batch: %w", err)
	}
	return nil
}

// Delete removes a single document by id.
func (idx *Index) Delete(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.index.Delete(id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// DeleteAll clears every document from the index.
func (idx *Index) DeleteAll() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids, err := idx.allIDsLocked()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	batch := idx.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := idx.index.Batch(batch); err != nil {
		return fmt.Errorf("delete all documents: %w", err)
	}
	return nil
}

// Count returns the number of documents in the index.
func (idx *Index) Count() (uint64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	count, err := idx.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func (idx *Index) allIDsLocked() ([]string, error) {
	docCount, err := idx.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("doc count: %w", err)
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = nil
	result, err := idx.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list all ids: %w", err)
	}
	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Search runs a query against the configured searchable fields with
// per-field boosts, applying q.Filters as a conjunction of
// disjunctions over the un-analyzed filterable fields. On any adapter
// error it logs nothing itself and returns the error with no hits; the
// hybrid engine logs it and treats the keyword side as empty.
func (idx *Index) Search(ctx context.Context, q Query) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	disjunction := bleve.NewDisjunctionQuery()
	for _, f := range searchableFields {
		mq := bleve.NewMatchQuery(q.Text)
		mq.SetField(f.field)
		mq.SetBoost(f.boost)
		disjunction.AddQuery(mq)
	}

	var finalQuery = bleve.Query(disjunction)
	if len(q.Filters) > 0 {
		conjunction := bleve.NewConjunctionQuery(disjunction)
		for _, filter := range q.Filters {
			if len(filter.Values) == 0 {
				continue
			}
			valueDisjunction := bleve.NewDisjunctionQuery()
			for _, v := range filter.Values {
				tq := bleve.NewTermQuery(v)
				tq.SetField(filter.Field)
				valueDisjunction.AddQuery(tq)
			}
			conjunction.AddQuery(valueDisjunction)
		}
		finalQuery = conjunction
	}

	req := bleve.NewSearchRequest(finalQuery)
	req.Size = limit
	req.Fields = []string{
		"content", "file_path", "file_name", "folder_name", "directory_path",
		"relative_path", "extension", "source_type", "source_id", "repository",
	}
	req.IncludeLocations = true

	result, err := idx.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var maxScore float64
	for _, hit := range result.Hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		score := 0.0
		if maxScore > 0 {
			score = hit.Score / maxScore
		}
		hits = append(hits, Hit{
			ID:           hit.ID,
			Score:        score,
			Snippet:      snippet(hit),
			FilePath:     fieldString(hit.Fields, "file_path"),
			FileName:     fieldString(hit.Fields, "file_name"),
			FolderName:   fieldString(hit.Fields, "folder_name"),
			RelativePath: fieldString(hit.Fields, "relative_path"),
			Extension:    fieldString(hit.Fields, "extension"),
			SourceType:   fieldString(hit.Fields, "source_type"),
			SourceID:     fieldString(hit.Fields, "source_id"),
			Repository:   fieldString(hit.Fields, "repository"),
		})
	}
	return hits, nil
}

func fieldString(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// AwaitQuiescence is a no-op for bleve: its Batch/Index calls are
// synchronous and durable by the time they return, so there is no
// pending-write state to wait out.
func (idx *Index) AwaitQuiescence(ctx context.Context) error {
	return nil
}

func snippet(hit *search.DocumentMatch) string {
	content, ok := hit.Fields["content"].(string)
	if !ok || content == "" {
		return ""
	}

	start := 0
	for field, locations := range hit.Locations {
		if field != "content" {
			continue
		}
		for _, occurrences := range locations {
			if len(occurrences) > 0 {
				if pos := int(occurrences[0].Start) - maxSnippetChars/4; pos > 0 {
					start = pos
				}
				break
			}
		}
		break
	}

	end := start + maxSnippetChars
	if end > len(content) {
		end = len(content)
	}
	if start > end {
		start = 0
	}
	return content[start:end]
}
