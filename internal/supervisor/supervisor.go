package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cerplabs/hybridsearch/internal/config"
	"github.com/cerplabs/hybridsearch/internal/coordinator"
	"github.com/cerplabs/hybridsearch/internal/embed"
	"github.com/cerplabs/hybridsearch/internal/keywordindex"
	"github.com/cerplabs/hybridsearch/internal/metadata"
	"github.com/cerplabs/hybridsearch/internal/rewrite"
	"github.com/cerplabs/hybridsearch/internal/scanner"
	"github.com/cerplabs/hybridsearch/internal/search"
	"github.com/cerplabs/hybridsearch/internal/source"
	"github.com/cerplabs/hybridsearch/internal/vectorindex"
	"github.com/cerplabs/hybridsearch/internal/watcher"
)

// Supervisor owns the full set of long-lived components and the order
// they start and stop in.
type Supervisor struct {
	cfg *config.Config

	sources  *source.Registry
	meta     *metadata.Store
	keyword  *keywordindex.Index
	vector   *vectorindex.Index
	coord    *coordinator.Coordinator
	watch    *watcher.RepositoryWatcher
	rewriter *rewrite.Rewriter
	engine   *search.Engine

	logger *slog.Logger
}

// New constructs a Supervisor from a loaded configuration, opening
// every backend and wiring the pipeline, but does not yet start
// watchers or accept requests; call Start for that.
func New(cfg *config.Config, logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := source.NewRegistry()
	registry.LoadFromConfig(cfg)

	metaPath := filepath.Join(cfg.DataDir, "metadata.db")
	metaStore, err := metadata.Open(metaPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	keywordPath := filepath.Join(cfg.DataDir, "keyword", cfg.Keyword.IndexName)
	keywordIdx, err := keywordindex.Open(keywordPath)
	if err != nil {
		_ = metaStore.Close()
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	vectorPath := filepath.Join(cfg.DataDir, "vector", "index.json")
	embedder := embed.NewCachedEmbedder(embed.NewStaticEmbedder(), embed.DefaultCacheSize)
	vectorIdx, err := vectorindex.Open(vectorPath, embedder)
	if err != nil {
		_ = metaStore.Close()
		_ = keywordIdx.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	scan := scanner.New(logger)
	coord := coordinator.New(keywordIdx, vectorIdx, metaStore, registry, scan, cfg.DataDir, logger)

	var rewriter *rewrite.Rewriter
	if cfg.Rewrite.Enabled {
		rewriter = rewrite.New(rewrite.Config{
			Host:  strings.TrimSuffix(cfg.Rewrite.Endpoint, "/api/generate"),
			Model: cfg.Rewrite.Model,
		}, logger)
	}

	engine := search.New(keywordIdx, vectorIdx, registry, logger)

	if err := recordIndexModel(metaStore, vectorIdx); err != nil {
		_ = vectorIdx.Close()
		_ = keywordIdx.Close()
		_ = metaStore.Close()
		return nil, fmt.Errorf("record vector index model: %w", err)
	}

	return &Supervisor{
		cfg:      cfg,
		sources:  registry,
		meta:     metaStore,
		keyword:  keywordIdx,
		vector:   vectorIdx,
		coord:    coord,
		watch:    watcher.New(coord, logger),
		rewriter: rewriter,
		engine:   engine,
		logger:   logger,
	}, nil
}

// Start runs migrations (already applied by metadata.Open), then
// starts a filesystem watcher for every enabled source. It does not
// block.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.cfg.Watch.Enabled {
		return nil
	}
	for _, src := range s.sources.List() {
		if !src.Enabled {
			continue
		}
		opts := watcher.Options{
			Extensions:      src.FilePatterns.Include,
			ExcludePatterns: src.FilePatterns.Exclude,
		}
		kinds := []coordinator.Kind{coordinator.KindKeyword, coordinator.KindVector}
		if err := s.watch.Watch(src.ID, src.Path, kinds, opts); err != nil {
			return fmt.Errorf("start watcher for source %s: %w", src.ID, err)
		}
	}
	return nil
}

// Stop tears the service down in reverse order: stop watchers first so
// no new work is queued, then cancel any in-flight coordinator run and
// wait for it to flush the files it has already batched and halt,
// then close the backend clients and the metadata store.
func (s *Supervisor) Stop() error {
	for _, src := range s.sources.List() {
		s.watch.Unwatch(src.ID)
	}
	s.coord.Stop([]coordinator.Kind{coordinator.KindKeyword, coordinator.KindVector})
	for s.coord.AnyRunning() {
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.vector.Close(); err != nil {
		s.logger.Error("closing vector index", slog.String("error", err.Error()))
	}
	if err := s.keyword.Close(); err != nil {
		s.logger.Error("closing keyword index", slog.String("error", err.Error()))
	}
	if err := s.meta.Close(); err != nil {
		return fmt.Errorf("closing metadata store: %w", err)
	}
	return nil
}

// Search runs a hybrid/keyword/semantic query through the engine.
func (s *Supervisor) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.Search.DefaultLimit
	}
	if limit > 100 {
		limit = 100
	}

	var rewriter *rewrite.Rewriter
	if s.cfg.Rewrite.Enabled {
		rewriter = s.rewriter
	}

	q := search.Query{
		Text:     req.Query,
		Limit:    limit,
		Kind:     search.Kind(req.Kind),
		MinScore: req.MinScore,
		Filters: search.Filters{
			Repository:   req.Filters.Repository,
			DirectoryIDs: req.Filters.DirectoryIDs,
			FolderName:   req.Filters.FolderName,
			Extension:    req.Filters.Extension,
		},
		Rewrite: rewriter,
	}

	results, err := s.engine.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			ID:               r.ID,
			FilePath:         r.FilePath,
			RelativePath:     r.RelativePath,
			Source:           r.Source,
			Score:            r.Score,
			KeywordScore:     r.KeywordScore,
			SemanticDistance: r.SemanticDistance,
			Snippet:          r.Snippet,
			FileType:         r.FileType,
		}
	}
	return out, nil
}

// Stats reports aggregate indexing state across both backends.
func (s *Supervisor) Stats() (Stats, error) {
	keywordCount, err := s.keyword.Count()
	if err != nil {
		return Stats{}, fmt.Errorf("count keyword documents: %w", err)
	}
	vectorCount, err := s.vector.Count()
	if err != nil {
		return Stats{}, fmt.Errorf("count vector chunks: %w", err)
	}

	bySource, err := s.meta.CountBySource()
	if err != nil {
		return Stats{}, fmt.Errorf("count files by source: %w", err)
	}

	perSource := make([]SourceStats, 0, len(bySource))
	for ref, count := range bySource {
		st := SourceStats{SourceID: ref, FileCount: count}
		if stats, err := s.meta.GetSourceStats(ref, ""); err == nil {
			for _, row := range stats {
				if row.LastIndexedAtUnix > st.LastIndexedAt.Unix() {
					st.LastIndexedAt = unixTime(row.LastIndexedAtUnix)
					st.LastDurationSeconds = row.LastDurationSeconds
				}
			}
		}
		perSource = append(perSource, st)
	}

	return Stats{
		KeywordDocuments: keywordCount,
		VectorChunks:     vectorCount,
		IsIndexing:       s.coord.AnyRunning(),
		PerSource:        perSource,
	}, nil
}

// Reindex starts (or restarts) indexing for the given sources and
// kinds, defaulting to every enabled source and both kinds.
func (s *Supervisor) Reindex(ctx context.Context, sourceIDs []string, kinds []string, fullRebuild bool) (coordinator.IndexRun, error) {
	if len(sourceIDs) == 0 {
		for _, src := range s.sources.List() {
			if src.Enabled {
				sourceIDs = append(sourceIDs, src.ID)
			}
		}
	}
	kindList := toCoordinatorKinds(kinds)
	mode := coordinator.ModeIncremental
	if fullRebuild {
		mode = coordinator.ModeFullRebuild
	}
	return s.coord.Index(ctx, sourceIDs, kindList, mode)
}

// StopIndexing cancels any running index run matching kinds (nil means
// all kinds).
func (s *Supervisor) StopIndexing(kinds []string) {
	s.coord.Stop(toCoordinatorKinds(kinds))
}

// Discover walks root looking for unregistered VCS-root candidates.
func (s *Supervisor) Discover(root string, maxDepth int) ([]source.CandidateSource, error) {
	return s.sources.Discover(root, maxDepth)
}

// AddSources registers new catalogued sources and, if the watcher is
// running, starts watching each enabled one immediately.
func (s *Supervisor) AddSources(reqs []AddSourceRequest) error {
	for _, req := range reqs {
		priority := config.Priority(req.Priority)
		if priority == "" {
			priority = config.PriorityMedium
		}
		src := source.Source{
			ID:       req.ID,
			Kind:     source.Kind(req.Kind),
			Name:     req.Name,
			Path:     req.Path,
			Enabled:  true,
			Priority: priority,
		}
		if err := s.sources.Add(src); err != nil {
			return err
		}
		if s.cfg.Watch.Enabled && src.Enabled {
			opts := watcher.Options{
				Extensions:      src.FilePatterns.Include,
				ExcludePatterns: src.FilePatterns.Exclude,
			}
			kinds := []coordinator.Kind{coordinator.KindKeyword, coordinator.KindVector}
			if err := s.watch.Watch(src.ID, src.Path, kinds, opts); err != nil {
				return fmt.Errorf("start watcher for source %s: %w", src.ID, err)
			}
		}
	}
	return nil
}

// EnableSource re-enables a disabled source and resumes watching it.
func (s *Supervisor) EnableSource(id string) error {
	if err := s.sources.SetEnabled(id, true); err != nil {
		return err
	}
	src, err := s.sources.Get(id)
	if err != nil {
		return err
	}
	if !s.cfg.Watch.Enabled {
		return nil
	}
	opts := watcher.Options{Extensions: src.FilePatterns.Include, ExcludePatterns: src.FilePatterns.Exclude}
	kinds := []coordinator.Kind{coordinator.KindKeyword, coordinator.KindVector}
	return s.watch.Watch(src.ID, src.Path, kinds, opts)
}

// DisableSource stops watching a source but leaves its indexed data in
// place.
func (s *Supervisor) DisableSource(id string) error {
	if err := s.sources.SetEnabled(id, false); err != nil {
		return err
	}
	s.watch.Unwatch(id)
	return nil
}

// RemoveSource unregisters a source entirely and cascades the removal
// to its metadata, keyword, and vector entries.
func (s *Supervisor) RemoveSource(id string) error {
	s.watch.Unwatch(id)

	files, err := s.meta.ListIndexed(id)
	if err != nil {
		return fmt.Errorf("list files for source %s: %w", id, err)
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	if len(paths) > 0 {
		if err := s.coord.RemovePaths(id, []coordinator.Kind{coordinator.KindKeyword, coordinator.KindVector}, paths); err != nil {
			return fmt.Errorf("remove indexed paths for source %s: %w", id, err)
		}
	}

	if _, err := s.meta.RemoveBySource(id); err != nil {
		return fmt.Errorf("remove metadata for source %s: %w", id, err)
	}

	return s.sources.Remove(id)
}

func toCoordinatorKinds(kinds []string) []coordinator.Kind {
	if len(kinds) == 0 {
		return []coordinator.Kind{coordinator.KindKeyword, coordinator.KindVector}
	}
	out := make([]coordinator.Kind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, coordinator.Kind(k))
	}
	return out
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0)
}

// recordIndexModel stores the embedder identity a freshly opened
// vector index is using if none is recorded yet, so a later open with
// a different embedding model can be detected as incompatible by
// IndexInfo without re-reading the index itself.
func recordIndexModel(meta *metadata.Store, vector *vectorindex.Index) error {
	existing, err := meta.GetMetadataValue(vectorindex.StateKeyIndexModel)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}
	if err := meta.SetMetadataValue(vectorindex.StateKeyIndexModel, vector.ModelName()); err != nil {
		return err
	}
	return meta.SetMetadataValue(vectorindex.StateKeyIndexDimension, strconv.Itoa(vector.Dimensions()))
}

// IndexInfo reports the embedding model the on-disk vector index was
// built with against the model the current configuration would use.
func (s *Supervisor) IndexInfo() (IndexInfo, error) {
	recordedModel, err := s.meta.GetMetadataValue(vectorindex.StateKeyIndexModel)
	if err != nil {
		return IndexInfo{}, fmt.Errorf("get recorded index model: %w", err)
	}
	recordedDimStr, err := s.meta.GetMetadataValue(vectorindex.StateKeyIndexDimension)
	if err != nil {
		return IndexInfo{}, fmt.Errorf("get recorded index dimensions: %w", err)
	}
	recordedDim, _ := strconv.Atoi(recordedDimStr)

	currentModel := s.vector.ModelName()
	currentDim := s.vector.Dimensions()

	return IndexInfo{
		IndexModel:        recordedModel,
		IndexDimensions:   recordedDim,
		CurrentModel:      currentModel,
		CurrentDimensions: currentDim,
		Compatible:        recordedModel == "" || (recordedModel == currentModel && recordedDim == currentDim),
	}, nil
}
