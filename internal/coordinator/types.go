package coordinator

import (
	"time"

	"github.com/google/uuid"
)

// Kind is one of the two backends a run can target.
type Kind string

const (
	KindKeyword Kind = "keyword"
	KindVector  Kind = "vector"
)

// Mode selects between touching only changed files and rebuilding a
// source's backend state from scratch.
type Mode string

const (
	ModeIncremental Mode = "incremental"
	ModeFullRebuild Mode = "full_rebuild"
)

// Status is an IndexRun's terminal or in-flight state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IndexRun is a snapshot of one index() invocation: which sources and
// kinds it covers, its progress, and its outcome.
type IndexRun struct {
	ID             uuid.UUID
	Sources        []string
	Kinds          []Kind
	Mode           Mode
	Status         Status
	StartedAt      time.Time
	FinishedAt     time.Time
	FilesProcessed int
	FilesSkipped   int
	Error          string
}

// orderKinds returns kinds with keyword first, matching the per-source
// pipeline's fixed sequencing (keyword before vector, so a failure on
// the vector side never leaves the keyword index half-updated).
func orderKinds(kinds []Kind) []Kind {
	ordered := make([]Kind, 0, len(kinds))
	for _, want := range []Kind{KindKeyword, KindVector} {
		for _, k := range kinds {
			if k == want {
				ordered = append(ordered, k)
			}
		}
	}
	return ordered
}

func containsKind(kinds []string, kind Kind) bool {
	for _, k := range kinds {
		if k == string(kind) {
			return true
		}
	}
	return false
}

func mergeKind(existing []string, kind Kind) []string {
	if containsKind(existing, kind) {
		return existing
	}
	return append(append([]string{}, existing...), string(kind))
}

func removeKind(existing []string, kind Kind) []string {
	out := make([]string, 0, len(existing))
	for _, k := range existing {
		if k != string(kind) {
			out = append(out, k)
		}
	}
	return out
}

func kindsOverlap(a, b []Kind) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
