package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerplabs/hybridsearch/internal/config"
)

func TestRegistryAddGetList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Source{ID: "a", Kind: KindRepository, Name: "a", Path: "/repos/a", Enabled: true, Priority: config.PriorityHigh}))

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, 1.5, got.PriorityWeight())

	require.Len(t, r.List(), 1)
}

func TestRegistryAddDuplicateFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Source{ID: "a", Path: "/repos/a"}))
	err := r.Add(Source{ID: "a", Path: "/repos/a-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_403_DUPLICATE_SOURCE")
}

func TestRegistryGetMissingFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_701_SOURCE_NOT_FOUND")
}

func TestRegistrySetEnabledAndPriority(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Source{ID: "a", Path: "/repos/a", Enabled: false}))

	require.NoError(t, r.SetEnabled("a", true))
	got, _ := r.Get("a")
	assert.True(t, got.Enabled)

	require.NoError(t, r.SetPriority("a", config.PriorityLow))
	got, _ = r.Get("a")
	assert.Equal(t, config.PriorityLow, got.Priority)

	err := r.SetPriority("a", config.Priority("urgent"))
	require.Error(t, err)
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Source{ID: "a", Path: "/repos/a"}))
	require.NoError(t, r.Remove("a"))
	_, err := r.Get("a")
	require.Error(t, err)
}

func TestLoadFromConfig(t *testing.T) {
	r := NewRegistry()
	cfg := &config.Config{
		Repositories: []config.RepositoryConfig{{Name: "repo-a", Path: "/x", Enabled: true, Priority: config.PriorityMedium}},
		Directories:  []config.DirectoryConfig{{ID: "dir-a", Path: "/y", Enabled: true}},
	}
	r.LoadFromConfig(cfg)

	sources := r.List()
	require.Len(t, sources, 2)
}

func TestDiscoverFindsGitRoots(t *testing.T) {
	root := t.TempDir()
	repoA := filepath.Join(root, "repo-a")
	require.NoError(t, os.MkdirAll(filepath.Join(repoA, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repoA, ".git", "config"), []byte(`
[core]
	repositoryformatversion = 0
[remote "origin"]
	url = git@github.com:acme/repo-a.git
	fetch = +refs/heads/*:refs/remotes/origin/*
`), 0o644))

	nested := filepath.Join(root, "workspace", "repo-b")
	require.NoError(t, os.MkdirAll(filepath.Join(nested, ".git"), 0o755))

	ignored := filepath.Join(root, "node_modules", "repo-c")
	require.NoError(t, os.MkdirAll(filepath.Join(ignored, ".git"), 0o755))

	r := NewRegistry()
	candidates, err := r.Discover(root, 4)
	require.NoError(t, err)

	var names []string
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"repo-a", "repo-b"}, names)

	for _, c := range candidates {
		if c.Name == "repo-a" {
			assert.Equal(t, "github.com/acme/repo-a", c.CloneIdentity)
		}
	}
}

func TestNormalizeRemoteURL(t *testing.T) {
	assert.Equal(t, "github.com/acme/repo", normalizeRemoteURL("git@github.com:acme/repo.git"))
	assert.Equal(t, "github.com/acme/repo", normalizeRemoteURL("https://github.com/acme/repo.git"))
	assert.Equal(t, "github.com/acme/repo", normalizeRemoteURL("ssh://git@github.com/acme/repo.git"))
}
