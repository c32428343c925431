// Package watcher turns filesystem notifications into coalesced
// incremental reindex requests, one subscription per catalogued
// source: an fsnotify-backed watcher plus a path-keyed debouncer,
// narrowed to the two outcomes this system's pipeline understands:
// upsert or remove.
package watcher

import (
	"context"
	"time"

	"github.com/cerplabs/hybridsearch/internal/coordinator"
)

// ChangeKind is what a debounced path change should do to the index.
type ChangeKind string

const (
	ChangeUpsert ChangeKind = "upsert"
	ChangeRemove ChangeKind = "remove"
)

// PathChange is one coalesced, debounced filesystem change.
type PathChange struct {
	Path string
	Kind ChangeKind
}

// Options configures a single source's subscription.
type Options struct {
	Extensions      []string
	ExcludePatterns []string
	DebounceWindow  time.Duration
}

// DefaultDebounceWindow is used when Options.DebounceWindow is zero.
const DefaultDebounceWindow = 5 * time.Second

func (o Options) withDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = DefaultDebounceWindow
	}
	return o
}

// Reindexer is the coordinator surface the watcher drives once a
// debounce window fires.
type Reindexer interface {
	Index(ctx context.Context, sourceIDs []string, kinds []coordinator.Kind, mode coordinator.Mode) (coordinator.IndexRun, error)
	RemovePaths(sourceID string, kinds []coordinator.Kind, paths []string) error
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := extensionOf(path)
	for _, want := range extensions {
		if ext == want {
			return true
		}
	}
	return false
}

func extensionOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
