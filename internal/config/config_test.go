package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHasExpectedValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 3, cfg.Search.FetchMultiplier)
	assert.True(t, cfg.Watch.Enabled)
}

func TestLoadMergesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	repoPath := filepath.Join(dir, "repo-a")
	require.NoError(t, os.MkdirAll(repoPath, 0o755))

	configPath := filepath.Join(dir, "sources.yaml")
	yamlContent := `
data_dir: /tmp/custom-data
repositories:
  - name: repo-a
    path: ` + repoPath + `
    enabled: true
    priority: high
search:
  rrf_constant: 42
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-data", cfg.DataDir)
	assert.Equal(t, 42, cfg.Search.RRFConstant)
	require.Len(t, cfg.Repositories, 1)
	assert.Equal(t, PriorityHigh, cfg.Repositories[0].Priority)
	assert.Equal(t, 10, cfg.Search.DefaultLimit, "unspecified fields keep their defaults")
}

func TestLoadMissingFileReturnsConfigNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_101_CONFIG_NOT_FOUND")
}

func TestValidateRejectsEnabledRepositoryWithMissingPath(t *testing.T) {
	cfg := Default()
	cfg.Repositories = []RepositoryConfig{{
		Name:    "ghost",
		Path:    "/does/not/exist",
		Enabled: true,
	}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Repositories = []RepositoryConfig{
		{Name: "dup", Path: dir, Enabled: true, Priority: PriorityMedium},
		{Name: "dup", Path: dir, Enabled: true, Priority: PriorityMedium},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate repository name")
}

func TestValidateRejectsInvalidPriority(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Repositories = []RepositoryConfig{{
		Name: "repo", Path: dir, Enabled: true, Priority: Priority("urgent"),
	}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid priority")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("HYBRIDSEARCH_DATA_DIR", "/var/lib/hybridsearch")
	t.Setenv("HYBRIDSEARCH_RRF_CONSTANT", "77")

	cfg := Default()
	cfg.applyEnvOverrides()
	assert.Equal(t, "/var/lib/hybridsearch", cfg.DataDir)
	assert.Equal(t, 77, cfg.Search.RRFConstant)
}

func TestPriorityWeight(t *testing.T) {
	assert.Equal(t, 1.5, PriorityHigh.Weight())
	assert.Equal(t, 1.0, PriorityMedium.Weight())
	assert.Equal(t, 0.7, PriorityLow.Weight())
}
