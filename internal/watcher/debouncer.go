package watcher

import (
	"sync"
	"time"
)

// debouncer coalesces rapid path changes within a window so a burst
// of writes to one file produces a single reindex request. Coalescing
// rules, keyed by path:
//   - upsert + upsert = upsert
//   - upsert + remove = remove
//   - remove + upsert = upsert
//   - remove + remove = remove
// The latest operation always wins; only the path set matters to the
// coordinator, not the history of operations on it.
type debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]ChangeKind
	timer   *time.Timer
	fire    func(map[string]ChangeKind)
	stopped bool
}

func newDebouncer(window time.Duration, fire func(map[string]ChangeKind)) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]ChangeKind),
		fire:    fire,
	}
}

// add records a change for path and (re)starts the debounce timer.
func (d *debouncer) add(path string, kind ChangeKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[path] = kind
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush snapshots and clears the pending set, then hands it to fire
// outside the lock so fire can take as long as it needs.
func (d *debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	snapshot := d.pending
	d.pending = make(map[string]ChangeKind)
	d.mu.Unlock()

	d.fire(snapshot)
}

// stop cancels the pending timer and drops any uncommitted work.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]ChangeKind)
}
