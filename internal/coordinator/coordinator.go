// Package coordinator is the sole writer into the keyword index, the
// vector index, and file metadata. It drives the per-source scan →
// filter → chunk → dual-write pipeline, enforces one writer per
// (source, kind) with file locks, and tracks each run's progress and
// outcome for inspection. Background run tracking with progress and
// cooperative stop, generalized from "reconcile one project" to "run
// an incremental or full rebuild across many catalogued sources."
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	cerrors "github.com/cerplabs/hybridsearch/internal/errors"
	"github.com/cerplabs/hybridsearch/internal/keywordindex"
	"github.com/cerplabs/hybridsearch/internal/metadata"
	"github.com/cerplabs/hybridsearch/internal/scanner"
	"github.com/cerplabs/hybridsearch/internal/source"
	"github.com/cerplabs/hybridsearch/internal/vectorindex"
	"github.com/cerplabs/hybridsearch/pkg/docid"
)

const (
	keywordFlushSize = 50_000
	vectorFlushSize  = 256
	retryBackoff     = 500 * time.Millisecond
)

// KeywordBackend is the subset of keywordindex.Index the coordinator
// writes through.
type KeywordBackend interface {
	Upsert(ctx context.Context, docs []keywordindex.Document) error
	Delete(id string) error
	AwaitQuiescence(ctx context.Context) error
}

// VectorBackend is the subset of vectorindex.Index the coordinator
// writes through.
type VectorBackend interface {
	Upsert(ctx context.Context, chunks []vectorindex.Chunk) error
	DeleteByFile(path string) error
}

// MetadataStore is the subset of metadata.Store the coordinator needs.
type MetadataStore interface {
	GetLastIndexed(path string) (metadata.FileMetadata, error)
	UpsertBatch(files []metadata.FileMetadata) error
	Remove(path string) error
	ListIndexed(sourceRef string) ([]metadata.FileMetadata, error)
	RecordSourceIndexing(sourceRef, kind string, durationSeconds float64, fileCount int, byteCount int64, isInitial bool) error
	SetLastIndexTime(key string, unixTime int64) error
}

// FileScanner is the subset of scanner.Scanner the coordinator drives.
type FileScanner interface {
	Scan(ctx context.Context, opts scanner.ScanOptions) (<-chan scanner.ScanResult, error)
}

// SourceLister is the subset of source.Registry the coordinator reads.
type SourceLister interface {
	Get(id string) (source.Source, error)
}

// Coordinator is the sole writer into keyword/vector indexes and file
// metadata. Safe for concurrent use.
type Coordinator struct {
	keyword KeywordBackend
	vector  VectorBackend
	meta    MetadataStore
	sources SourceLister
	scan    FileScanner
	dataDir string
	logger  *slog.Logger

	mu     sync.Mutex
	locks  map[string]*flock.Flock
	active map[uuid.UUID]*runState
}

type runState struct {
	mu     sync.RWMutex
	run    IndexRun
	cancel context.CancelFunc
}

func (s *runState) snapshot() IndexRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

func (s *runState) update(fn func(*IndexRun)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.run)
}

// New constructs a Coordinator. dataDir holds the per-(source,kind)
// lock files used to enforce single-writer access.
func New(keyword KeywordBackend, vector VectorBackend, meta MetadataStore, sources SourceLister, scan FileScanner, dataDir string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		keyword: keyword,
		vector:  vector,
		meta:    meta,
		sources: sources,
		scan:    scan,
		dataDir: dataDir,
		logger:  logger,
		locks:   make(map[string]*flock.Flock),
		active:  make(map[uuid.UUID]*runState),
	}
}

// Index starts a background run over sourceIDs for kinds in mode and
// returns immediately with the run's initial (running) snapshot.
// Callers poll GetRun for progress.
func (c *Coordinator) Index(ctx context.Context, sourceIDs []string, kinds []Kind, mode Mode) (IndexRun, error) {
	if len(sourceIDs) == 0 {
		return IndexRun{}, cerrors.New(cerrors.CodeInternal, "index requires at least one source", nil)
	}
	for _, id := range sourceIDs {
		if _, err := c.sources.Get(id); err != nil {
			return IndexRun{}, err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	state := &runState{
		run: IndexRun{
			ID:        uuid.New(),
			Sources:   sourceIDs,
			Kinds:     orderKinds(kinds),
			Mode:      mode,
			Status:    StatusRunning,
			StartedAt: time.Now(),
		},
		cancel: cancel,
	}

	c.mu.Lock()
	c.active[state.run.ID] = state
	c.mu.Unlock()

	go c.runAll(runCtx, state)

	return state.snapshot(), nil
}

// Stop requests cooperative cancellation of every active run that
// touches any of kinds. Cancellation is checked before each file and
// between sources; a stopped run flushes the files it has already
// batched, then ends with status=cancelled and partial counts.
func (c *Coordinator) Stop(kinds []Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, state := range c.active {
		snap := state.snapshot()
		if snap.Status == StatusRunning && kindsOverlap(snap.Kinds, kinds) {
			state.cancel()
		}
	}
}

// AnyRunning reports whether any run is currently in flight, for
// stats()'s is_indexing field.
func (c *Coordinator) AnyRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, state := range c.active {
		if state.snapshot().Status == StatusRunning {
			return true
		}
	}
	return false
}

// GetRun returns the current snapshot of a run.
func (c *Coordinator) GetRun(id uuid.UUID) (IndexRun, error) {
	c.mu.Lock()
	state, ok := c.active[id]
	c.mu.Unlock()
	if !ok {
		return IndexRun{}, cerrors.New(cerrors.CodeInternal, fmt.Sprintf("unknown index run: %s", id), nil)
	}
	return state.snapshot(), nil
}

// RemovePaths deletes specific absolute paths from the given kinds'
// backends and trims them from file metadata. It is the watcher's
// entry point for filesystem delete/move-away events, which name
// exact paths rather than a whole source to rescan.
func (c *Coordinator) RemovePaths(sourceID string, kinds []Kind, paths []string) error {
	for _, p := range paths {
		existing, err := c.meta.GetLastIndexed(p)
		if err != nil {
			continue
		}
		remaining := existing.IndexedKinds
		for _, kind := range kinds {
			if !containsKind(remaining, kind) {
				continue
			}
			switch kind {
			case KindKeyword:
				if err := c.keyword.Delete(docid.For(p)); err != nil {
					return cerrors.Wrap(cerrors.CodeInternal, err, "removing keyword entry for %s", p)
				}
			case KindVector:
				if err := c.vector.DeleteByFile(p); err != nil {
					return cerrors.Wrap(cerrors.CodeInternal, err, "removing vector entries for %s", p)
				}
			}
			remaining = removeKind(remaining, kind)
		}
		if len(remaining) == 0 {
			if err := c.meta.Remove(p); err != nil {
				return cerrors.Wrap(cerrors.CodeInternal, err, "removing metadata row for %s", p)
			}
			continue
		}
		existing.IndexedKinds = remaining
		if err := c.meta.UpsertBatch([]metadata.FileMetadata{existing}); err != nil {
			return cerrors.Wrap(cerrors.CodeInternal, err, "trimming metadata row for %s", p)
		}
	}
	return nil
}

func (c *Coordinator) runAll(ctx context.Context, state *runState) {
	run := state.snapshot()
	logger := c.logger.With(slog.String("run_id", run.ID.String()))
	logger.Info("index run started", slog.Any("sources", run.Sources), slog.Any("kinds", run.Kinds), slog.String("mode", string(run.Mode)))

sourceLoop:
	for _, sourceID := range run.Sources {
		select {
		case <-ctx.Done():
			break sourceLoop
		default:
		}

		src, err := c.sources.Get(sourceID)
		if err != nil {
			state.update(func(r *IndexRun) { r.Error = err.Error() })
			break sourceLoop
		}

		for _, kind := range run.Kinds {
			select {
			case <-ctx.Done():
				break sourceLoop
			default:
			}

			if err := c.runSourceKind(ctx, state, src, kind, run.Mode); err != nil {
				if cerrors.IsCancelled(err) {
					break sourceLoop
				}
				state.update(func(r *IndexRun) { r.Error = err.Error() })
				logger.Error("index run failed", slog.String("source", sourceID), slog.String("kind", string(kind)), slog.String("error", err.Error()))
				c.finish(state, StatusFailed, logger)
				return
			}
		}
	}

	finalStatus := StatusComplete
	if ctx.Err() != nil {
		finalStatus = StatusCancelled
	} else if state.snapshot().Error != "" {
		finalStatus = StatusFailed
	}
	c.finish(state, finalStatus, logger)
}

func (c *Coordinator) finish(state *runState, status Status, logger *slog.Logger) {
	state.update(func(r *IndexRun) {
		r.Status = status
		r.FinishedAt = time.Now()
	})
	snap := state.snapshot()
	logger.Info("index run finished",
		slog.String("status", string(snap.Status)),
		slog.Int("files_processed", snap.FilesProcessed),
		slog.Int("files_skipped", snap.FilesSkipped))

	if snap.Status == StatusComplete {
		_ = c.meta.SetLastIndexTime("last_index_time", snap.FinishedAt.Unix())
	}
}

// lockFor returns (creating if needed) the flock guarding a
// (source, kind) pair's write access.
func (c *Coordinator) lockFor(sourceID string, kind Kind) *flock.Flock {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := sourceID + "/" + string(kind)
	if l, ok := c.locks[key]; ok {
		return l
	}
	path := filepath.Join(c.dataDir, "locks", fmt.Sprintf("%s-%s.lock", sourceID, kind))
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	l := flock.New(path)
	c.locks[key] = l
	return l
}
