// Package source owns the catalogue of repositories and managed
// directories that the rest of the system indexes: their identity,
// enablement, priority, and file-pattern configuration, plus
// filesystem discovery of new candidates.
package source

import (
	"fmt"
	"sync"

	"github.com/cerplabs/hybridsearch/internal/config"
	cerrors "github.com/cerplabs/hybridsearch/internal/errors"
)

// Kind distinguishes the two source variants the registry tracks.
type Kind string

const (
	KindRepository Kind = "repository"
	KindDirectory  Kind = "directory"
)

// Source is a single catalogued repository or managed directory.
type Source struct {
	ID           string
	Kind         Kind
	Name         string
	Path         string
	Enabled      bool
	Priority     config.Priority
	FilePatterns config.FilePatterns
}

// PriorityWeight returns the score multiplier a result from this
// source should receive during fusion re-weighting.
func (s Source) PriorityWeight() float64 {
	return s.Priority.Weight()
}

// Registry is the in-memory catalogue of sources, seeded from
// configuration at start-up and mutated by the supervisor facade.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*Source
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]*Source)}
}

// LoadFromConfig seeds the registry from a loaded Config, replacing
// any existing entries of the same id.
func (r *Registry) LoadFromConfig(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rc := range cfg.Repositories {
		r.sources[rc.Name] = &Source{
			ID:           rc.Name,
			Kind:         KindRepository,
			Name:         rc.Name,
			Path:         rc.Path,
			Enabled:      rc.Enabled,
			Priority:     rc.Priority,
			FilePatterns: rc.FilePatterns,
		}
	}
	for _, dc := range cfg.Directories {
		r.sources[dc.ID] = &Source{
			ID:           dc.ID,
			Kind:         KindDirectory,
			Name:         dc.ID,
			Path:         dc.Path,
			Enabled:      dc.Enabled,
			FilePatterns: dc.FilePatterns,
		}
	}
}

// Add registers a new source. It fails with CodeDuplicateSource if the
// id is already in use.
func (r *Registry) Add(s Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[s.ID]; exists {
		return cerrors.New(cerrors.CodeDuplicateSource, fmt.Sprintf("source already registered: %s", s.ID), nil)
	}
	clone := s
	r.sources[s.ID] = &clone
	return nil
}

// Get returns a copy of the source with the given id.
func (r *Registry) Get(id string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	if !ok {
		return Source{}, cerrors.New(cerrors.CodeSourceNotFound, fmt.Sprintf("source not found: %s", id), nil)
	}
	return *s, nil
}

// List returns a snapshot of all catalogued sources.
func (r *Registry) List() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, *s)
	}
	return out
}

// SetEnabled toggles a source's enablement.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sources[id]
	if !ok {
		return cerrors.New(cerrors.CodeSourceNotFound, fmt.Sprintf("source not found: %s", id), nil)
	}
	s.Enabled = enabled
	return nil
}

// SetPriority updates a repository source's priority bucket.
func (r *Registry) SetPriority(id string, priority config.Priority) error {
	if !priority.Valid() {
		return cerrors.New(cerrors.CodeInvalidPriority, fmt.Sprintf("invalid priority: %s", priority), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sources[id]
	if !ok {
		return cerrors.New(cerrors.CodeSourceNotFound, fmt.Sprintf("source not found: %s", id), nil)
	}
	s.Priority = priority
	return nil
}

// PriorityWeight looks up a source's priority weight by id, returning
// 1.0 (neutral) for an unknown id so a stale or removed source never
// distorts fusion re-weighting into a zero score.
func (r *Registry) PriorityWeight(id string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	if !ok {
		return 1.0
	}
	return s.PriorityWeight()
}

// Remove deletes a source from the catalogue. Callers are responsible
// for cascading the removal to metadata and backend-index entries.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[id]; !ok {
		return cerrors.New(cerrors.CodeSourceNotFound, fmt.Sprintf("source not found: %s", id), nil)
	}
	delete(r.sources, id)
	return nil
}
