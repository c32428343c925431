// Package vectorindex adapts coder/hnsw, a pure-Go (no cgo)
// approximate nearest-neighbour graph, to the hybrid search system's
// VectorIndex contract: chunked upsert, per-file query deduplication,
// and gob-encoded persistence of the ID mapping the graph itself
// doesn't know about.
package vectorindex

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/coder/hnsw"

	"github.com/cerplabs/hybridsearch/internal/embed"
)

// StateKeyIndexModel and StateKeyIndexDimension name the persisted
// metadata rows a caller can compare against the currently configured
// embedder to detect an incompatible index (built with a different
// model or dimensionality than is now configured).
const (
	StateKeyIndexModel     = "vector_index_model"
	StateKeyIndexDimension = "vector_index_dimension"
)

// fetchMultiplier over-fetches neighbours before per-file dedup so
// that deduping down to Limit still leaves Limit distinct files
// whenever that many exist.
const fetchMultiplier = 5

type storedChunk struct {
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

// Index wraps an hnsw.Graph configured per the VectorChunk schema.
type Index struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[uint64]
	embedder embed.Embedder
	metric   string

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	chunks map[string]storedChunk
	byFile map[string]map[string]struct{}

	path   string
	closed bool
}

// persistedMeta is the gob-encoded sidecar alongside the exported
// graph file, carrying everything the graph itself can't represent.
type persistedMeta struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Chunks     map[string]storedChunk
	Metric     string
	Model      string
	Dimensions int
}

// Open creates or loads a vector index at path using embedder to turn
// text into vectors. An empty path yields an in-memory index used for
// tests and ephemeral sources.
func Open(path string, embedder embed.Embedder) (*Index, error) {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	idx := &Index{
		graph:    graph,
		embedder: embedder,
		metric:   "cos",
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		chunks:   make(map[string]storedChunk),
		byFile:   make(map[string]map[string]struct{}),
		path:     path,
	}

	if path == "" {
		return idx, nil
	}

	if _, err := os.Stat(path); err == nil {
		if err := idx.load(path); err != nil {
			return nil, fmt.Errorf("load vector index: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat vector index: %w", err)
	}
	return idx, nil
}

// Close persists the index (if backed by a file) and releases it.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true

	if idx.path == "" {
		return nil
	}
	return idx.saveLocked()
}

// Upsert embeds and indexes a batch of chunks. Re-indexing a chunk ID
// that already exists uses lazy deletion (orphan the old graph node,
// add a new one) rather than calling graph.Delete, avoiding a
// coder/hnsw bug when the last node in the graph is deleted.
func (idx *Index) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i, c := range chunks {
		vec := vectors[i]
		if len(vec) != idx.embedder.Dimensions() {
			return ErrDimensionMismatch{Expected: idx.embedder.Dimensions(), Got: len(vec)}
		}

		idx.dropLocked(c.ID)

		normalized := make([]float32, len(vec))
		copy(normalized, vec)
		normalizeVectorInPlace(normalized)

		key := idx.nextKey
		idx.nextKey++
		idx.graph.Add(hnsw.MakeNode(key, normalized))

		idx.idMap[c.ID] = key
		idx.keyMap[key] = c.ID
		idx.chunks[c.ID] = storedChunk{
			FilePath: c.FilePath, SourceType: c.SourceType, SourceID: c.SourceID,
			Repository: c.Repository, FileType: c.FileType, RelativePath: c.RelativePath,
			ChunkIndex: c.ChunkIndex, TotalChunks: c.TotalChunks, Text: c.Text,
		}
		idx.indexByFileLocked(c.FilePath, c.ID)
	}
	return nil
}

// DeleteByFile removes every chunk belonging to a file.
func (idx *Index) DeleteByFile(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for id := range idx.byFile[path] {
		idx.dropLocked(id)
	}
	delete(idx.byFile, path)
	return nil
}

// DeleteAll clears every chunk from the index.
func (idx *Index) DeleteAll() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.idMap = make(map[string]uint64)
	idx.keyMap = make(map[uint64]string)
	idx.chunks = make(map[string]storedChunk)
	idx.byFile = make(map[string]map[string]struct{})
	idx.graph = hnsw.NewGraph[uint64]()
	idx.graph.Distance = hnsw.CosineDistance
	idx.graph.M = 16
	idx.graph.EfSearch = 20
	idx.graph.Ml = 0.25
	idx.nextKey = 0
	return nil
}

// Count returns the number of live chunks.
func (idx *Index) Count() (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idMap), nil
}

// Query embeds text, runs a nearest-neighbour search, applies equality
// filters, and deduplicates to at most one hit per file by keeping the
// lowest-distance chunk.
func (idx *Index) Query(ctx context.Context, q Query) ([]Hit, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	vec, err := idx.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.idMap) == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeVectorInPlace(normalized)

	k := limit * fetchMultiplier
	if k > len(idx.idMap) {
		k = len(idx.idMap)
	}
	nodes := idx.graph.Search(normalized, k)

	bestByFile := make(map[string]Hit)
	for _, node := range nodes {
		id, ok := idx.keyMap[node.Key]
		if !ok {
			continue // lazily-deleted orphan
		}
		chunk, ok := idx.chunks[id]
		if !ok {
			continue
		}
		if !matchesFilters(chunk, q.Filters) {
			continue
		}

		distance := idx.graph.Distance(normalized, node.Value)
		existing, seen := bestByFile[chunk.FilePath]
		if seen && existing.Distance <= distance {
			continue
		}
		bestByFile[chunk.FilePath] = Hit{
			ID:        id,
			FilePath:  chunk.FilePath,
			Distance:  distance,
			Metadata:  metadataOf(chunk),
			ChunkText: chunk.Text,
		}
	}

	hits := make([]Hit, 0, len(bestByFile))
	for _, h := range bestByFile {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ModelName and Dimensions report the embedder this index was opened
// with, used by callers to persist/compare StateKeyIndexModel and
// StateKeyIndexDimension against a future configuration.
func (idx *Index) ModelName() string { return idx.embedder.ModelName() }
func (idx *Index) Dimensions() int   { return idx.embedder.Dimensions() }

func matchesFilters(c storedChunk, filters []Filter) bool {
	meta := metadataOf(c)
	for _, f := range filters {
		if len(f.Values) == 0 {
			continue
		}
		value, ok := meta[f.Field]
		if !ok {
			return false
		}
		matched := false
		for _, want := range f.Values {
			if value == want {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// dropLocked removes id from the mapping tables, orphaning its graph
// node rather than deleting it.
func (idx *Index) dropLocked(id string) {
	key, ok := idx.idMap[id]
	if !ok {
		return
	}
	delete(idx.idMap, id)
	delete(idx.keyMap, key)
	if chunk, ok := idx.chunks[id]; ok {
		if set := idx.byFile[chunk.FilePath]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(idx.byFile, chunk.FilePath)
			}
		}
	}
	delete(idx.chunks, id)
}

func (idx *Index) indexByFileLocked(filePath, id string) {
	set, ok := idx.byFile[filePath]
	if !ok {
		set = make(map[string]struct{})
		idx.byFile[filePath] = set
	}
	set[id] = struct{}{}
}

func (idx *Index) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return fmt.Errorf("create vector index directory: %w", err)
	}

	tmpPath := idx.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := idx.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, idx.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return idx.saveMetaLocked(idx.path + ".meta")
}

func (idx *Index) saveMetaLocked(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := persistedMeta{
		IDMap:      idx.idMap,
		NextKey:    idx.nextKey,
		Chunks:     idx.chunks,
		Metric:     idx.metric,
		Model:      idx.embedder.ModelName(),
		Dimensions: idx.embedder.Dimensions(),
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

func (idx *Index) load(path string) error {
	if err := idx.loadMeta(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	if err := idx.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (idx *Index) loadMeta(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta persistedMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	idx.idMap = meta.IDMap
	idx.nextKey = meta.NextKey
	idx.chunks = meta.Chunks
	if idx.chunks == nil {
		idx.chunks = make(map[string]storedChunk)
	}
	idx.metric = meta.Metric

	idx.keyMap = make(map[uint64]string, len(idx.idMap))
	idx.byFile = make(map[string]map[string]struct{})
	for id, key := range idx.idMap {
		idx.keyMap[key] = id
		if chunk, ok := idx.chunks[id]; ok {
			idx.indexByFileLocked(chunk.FilePath, id)
		}
	}
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
