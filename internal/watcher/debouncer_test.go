package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerSingleChangePassesThrough(t *testing.T) {
	fired := make(chan map[string]ChangeKind, 1)
	d := newDebouncer(30*time.Millisecond, func(m map[string]ChangeKind) { fired <- m })
	defer d.stop()

	d.add("/repo/a.go", ChangeUpsert)

	select {
	case batch := <-fired:
		require.Len(t, batch, 1)
		assert.Equal(t, ChangeUpsert, batch["/repo/a.go"])
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for debounced batch")
	}
}

func TestDebouncerCoalescesRepeatedUpserts(t *testing.T) {
	fired := make(chan map[string]ChangeKind, 1)
	d := newDebouncer(60*time.Millisecond, func(m map[string]ChangeKind) { fired <- m })
	defer d.stop()

	for i := 0; i < 5; i++ {
		d.add("/repo/a.go", ChangeUpsert)
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case batch := <-fired:
		require.Len(t, batch, 1)
		assert.Equal(t, ChangeUpsert, batch["/repo/a.go"])
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for debounced batch")
	}
}

func TestDebouncerLatestOperationWins(t *testing.T) {
	fired := make(chan map[string]ChangeKind, 1)
	d := newDebouncer(30*time.Millisecond, func(m map[string]ChangeKind) { fired <- m })
	defer d.stop()

	d.add("/repo/a.go", ChangeUpsert)
	d.add("/repo/a.go", ChangeRemove)

	select {
	case batch := <-fired:
		require.Len(t, batch, 1)
		assert.Equal(t, ChangeRemove, batch["/repo/a.go"])
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for debounced batch")
	}
}

func TestDebouncerBatchesDistinctPaths(t *testing.T) {
	fired := make(chan map[string]ChangeKind, 1)
	d := newDebouncer(30*time.Millisecond, func(m map[string]ChangeKind) { fired <- m })
	defer d.stop()

	d.add("/repo/a.go", ChangeUpsert)
	d.add("/repo/b.go", ChangeRemove)

	select {
	case batch := <-fired:
		require.Len(t, batch, 2)
		assert.Equal(t, ChangeUpsert, batch["/repo/a.go"])
		assert.Equal(t, ChangeRemove, batch["/repo/b.go"])
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for debounced batch")
	}
}

func TestDebouncerStopDropsPendingWork(t *testing.T) {
	fired := make(chan map[string]ChangeKind, 1)
	d := newDebouncer(30*time.Millisecond, func(m map[string]ChangeKind) { fired <- m })

	d.add("/repo/a.go", ChangeUpsert)
	d.stop()

	select {
	case <-fired:
		t.Fatal("stop should have dropped the pending batch")
	case <-time.After(80 * time.Millisecond):
	}
}
