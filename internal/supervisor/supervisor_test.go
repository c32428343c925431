package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerplabs/hybridsearch/internal/config"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Watch.Enabled = false

	sup, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sup.Stop() })
	return sup
}

func TestIndexInfoCompatibleOnFreshIndex(t *testing.T) {
	sup := newTestSupervisor(t)

	info, err := sup.IndexInfo()
	require.NoError(t, err)
	assert.True(t, info.Compatible)
	assert.Equal(t, info.CurrentModel, info.IndexModel)
	assert.Equal(t, info.CurrentDimensions, info.IndexDimensions)
}

func TestIndexInfoStaysCompatibleAcrossReopen(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Watch.Enabled = false

	sup, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, sup.Stop())

	metaPath := filepath.Join(cfg.DataDir, "metadata.db")
	require.FileExists(t, metaPath)

	// Reopening with the same static embedder stays compatible; this
	// guards against the recorded state drifting across restarts.
	sup2, err := New(cfg, nil)
	require.NoError(t, err)
	defer sup2.Stop()

	info, err := sup2.IndexInfo()
	require.NoError(t, err)
	assert.True(t, info.Compatible)
}

func TestAddSourceAndSearchRoundTrip(t *testing.T) {
	sup := newTestSupervisor(t)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "auth.py"), []byte("def authenticate(token):\n    return True\n"), 0o644))

	require.NoError(t, sup.AddSources([]AddSourceRequest{{
		ID:       "demo",
		Kind:     "directory",
		Name:     "demo",
		Path:     root,
		Priority: "high",
	}}))

	ctx := context.Background()
	_, err := sup.Reindex(ctx, []string{"demo"}, nil, true)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, err := sup.Stats()
		return err == nil && !st.IsIndexing
	}, 5*time.Second, 10*time.Millisecond)

	results, err := sup.Search(ctx, SearchRequest{Query: "authenticate", Limit: 5, Kind: "keyword"})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}
