package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/cerplabs/hybridsearch/internal/coordinator"
	"github.com/cerplabs/hybridsearch/internal/scanner"
)

// RepositoryWatcher turns raw filesystem notifications into coalesced
// incremental reindex requests, one independent subscription per
// source: fsnotify as the sole backend (a polling fallback has no role
// here since every source this system watches is a local directory
// fsnotify can always subscribe to), recursive directory registration
// on create, and a debounce timer that never runs on the
// event-reading goroutine.
type RepositoryWatcher struct {
	reindexer Reindexer
	logger    *slog.Logger

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	sourceID  string
	rootPath  string
	kinds     []coordinator.Kind
	opts      Options
	fsWatcher *fsnotify.Watcher
	debounce  *debouncer
	stopCh    chan struct{}
}

// New constructs a RepositoryWatcher. reindexer receives debounced
// change batches once each source's debounce window fires.
func New(reindexer Reindexer, logger *slog.Logger) *RepositoryWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepositoryWatcher{
		reindexer: reindexer,
		logger:    logger,
		subs:      make(map[string]*subscription),
	}
}

// Watch subscribes to filesystem events under rootPath for sourceID,
// indexing kinds incrementally whenever the debounce window fires.
// Calling Watch again for a sourceID already being watched replaces
// the prior subscription.
func (w *RepositoryWatcher) Watch(sourceID, rootPath string, kinds []coordinator.Kind, opts Options) error {
	opts = opts.withDefaults()

	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}

	sub := &subscription{
		sourceID:  sourceID,
		rootPath:  absRoot,
		kinds:     kinds,
		opts:      opts,
		fsWatcher: fsw,
		stopCh:    make(chan struct{}),
	}
	sub.debounce = newDebouncer(opts.DebounceWindow, func(batch map[string]ChangeKind) {
		w.apply(sub, batch)
	})

	if err := addRecursive(fsw, absRoot); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("add watch tree: %w", err)
	}

	w.mu.Lock()
	if prior, ok := w.subs[sourceID]; ok {
		w.stopLocked(prior)
	}
	w.subs[sourceID] = sub
	w.mu.Unlock()

	go w.run(sub)
	return nil
}

// Unwatch cancels sourceID's pending debounce work and tears down its
// subscription. Safe to call on a source that isn't being watched.
func (w *RepositoryWatcher) Unwatch(sourceID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sub, ok := w.subs[sourceID]
	if !ok {
		return
	}
	w.stopLocked(sub)
	delete(w.subs, sourceID)
}

func (w *RepositoryWatcher) stopLocked(sub *subscription) {
	sub.debounce.stop()
	close(sub.stopCh)
	_ = sub.fsWatcher.Close()
}

func (w *RepositoryWatcher) run(sub *subscription) {
	for {
		select {
		case <-sub.stopCh:
			return
		case event, ok := <-sub.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(sub, event)
		case err, ok := <-sub.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.String("source", sub.sourceID), slog.String("error", err.Error()))
		}
	}
}

func (w *RepositoryWatcher) handleEvent(sub *subscription, event fsnotify.Event) {
	relPath, err := filepath.Rel(sub.rootPath, event.Name)
	if err != nil {
		relPath = event.Name
	}

	isDir := false
	if info, statErr := os.Stat(event.Name); statErr == nil {
		isDir = info.IsDir()
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		if isDir {
			_ = addRecursive(sub.fsWatcher, event.Name)
			return
		}
		if w.accepted(relPath, sub.opts) {
			sub.debounce.add(event.Name, ChangeUpsert)
		}
	case event.Op&fsnotify.Write != 0:
		if isDir {
			return
		}
		if w.accepted(relPath, sub.opts) {
			sub.debounce.add(event.Name, ChangeUpsert)
		}
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		if w.accepted(relPath, sub.opts) {
			sub.debounce.add(event.Name, ChangeRemove)
		}
	default:
		// Chmod and anything else is not a content change.
	}
}

// accepted reports whether a changed path should be forwarded: the
// extension must be in the watched set and the path must not match
// an exclusion pattern equivalent to the scanner's.
func (w *RepositoryWatcher) accepted(relPath string, opts Options) bool {
	if scanner.MatchesExcludePattern(relPath, opts.ExcludePatterns) {
		return false
	}
	return hasExtension(relPath, opts.Extensions)
}

// apply hands a debounced batch to the coordinator: paths slated for
// removal are deleted directly, paths slated for upsert trigger an
// incremental index of the owning source (which itself skips any
// file whose size and mtime haven't changed).
func (w *RepositoryWatcher) apply(sub *subscription, batch map[string]ChangeKind) {
	var removals []string
	var upserts bool
	for path, kind := range batch {
		switch kind {
		case ChangeRemove:
			removals = append(removals, path)
		case ChangeUpsert:
			upserts = true
		}
	}

	if len(removals) > 0 {
		if err := w.reindexer.RemovePaths(sub.sourceID, sub.kinds, removals); err != nil {
			w.logger.Error("removing deleted paths", slog.String("source", sub.sourceID), slog.String("error", err.Error()))
		}
	}
	if upserts {
		if _, err := w.reindexer.Index(context.Background(), []string{sub.sourceID}, sub.kinds, coordinator.ModeIncremental); err != nil {
			w.logger.Error("triggering incremental reindex", slog.String("source", sub.sourceID), slog.String("error", err.Error()))
		}
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() != "." && (d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == "vendor") {
			return fs.SkipDir
		}
		return fsw.Add(path)
	})
}
