// Package config loads the declarative source configuration (repositories
// and directories, file patterns, priorities) plus the ambient settings
// (data directory, backend endpoints, logging) that the supervisor needs
// at start-up. Loading follows a layered precedence: defaults, then a
// YAML file, then environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	cerrors "github.com/cerplabs/hybridsearch/internal/errors"
)

// Priority is a repository's coarse priority bucket.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Weight returns the score multiplier for a repository priority.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityHigh:
		return 1.5
	case PriorityLow:
		return 0.7
	default:
		return 1.0
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow, "":
		return true
	default:
		return false
	}
}

// FilePatterns configures the include/exclude glob sets for a source.
type FilePatterns struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// DefaultTextIncludePatterns is the standard text-file whitelist used
// for managed directories that don't specify their own patterns.
var DefaultTextIncludePatterns = []string{
	"**/*.md", "**/*.txt", "**/*.rst", "**/*.go", "**/*.py", "**/*.js",
	"**/*.ts", "**/*.tsx", "**/*.jsx", "**/*.java", "**/*.rb", "**/*.rs",
	"**/*.c", "**/*.h", "**/*.cpp", "**/*.hpp", "**/*.cs", "**/*.sh",
	"**/*.yaml", "**/*.yml", "**/*.json", "**/*.toml",
}

// DefaultBuildArtifactExcludePatterns is the standard blacklist of
// build-output / vendor directories used for managed directories.
var DefaultBuildArtifactExcludePatterns = []string{
	"**/node_modules/**", "**/.git/**", "**/vendor/**", "**/dist/**",
	"**/build/**", "**/target/**", "**/.venv/**", "**/__pycache__/**",
	"**/bin/**", "**/obj/**",
}

// RepositoryConfig is one `repositories:` entry in the source file.
type RepositoryConfig struct {
	Name         string       `yaml:"name" json:"name"`
	Path         string       `yaml:"path" json:"path"`
	Enabled      bool         `yaml:"enabled" json:"enabled"`
	Priority     Priority     `yaml:"priority" json:"priority"`
	FilePatterns FilePatterns `yaml:"file_patterns" json:"file_patterns"`
}

// DirectoryConfig is one `directories:` entry (managed directory source).
type DirectoryConfig struct {
	ID           string       `yaml:"id" json:"id"`
	Path         string       `yaml:"path" json:"path"`
	Enabled      bool         `yaml:"enabled" json:"enabled"`
	Priority     int          `yaml:"priority" json:"priority"`
	Notes        string       `yaml:"notes" json:"notes"`
	FilePatterns FilePatterns `yaml:"file_patterns" json:"file_patterns"`
}

// SearchConfig tunes the hybrid search engine.
type SearchConfig struct {
	RRFConstant     int `yaml:"rrf_constant" json:"rrf_constant"`
	DefaultLimit    int `yaml:"default_limit" json:"default_limit"`
	FetchMultiplier int `yaml:"fetch_multiplier" json:"fetch_multiplier"`
}

// EmbeddingConfig configures the vector index's embedding backend.
type EmbeddingConfig struct {
	Model      string `yaml:"model" json:"model"`
	Device     string `yaml:"device" json:"device"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
}

// KeywordEngineConfig configures the embedded keyword (bleve) index.
type KeywordEngineConfig struct {
	IndexName string `yaml:"index_name" json:"index_name"`
}

// RewriteConfig configures the optional query-rewrite LLM call.
type RewriteConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	Model      string `yaml:"model" json:"model"`
	TimeoutMS  int    `yaml:"timeout_ms" json:"timeout_ms"`
}

// WatchConfig configures the filesystem watcher's debounce window.
type WatchConfig struct {
	Enabled              bool `yaml:"enabled" json:"enabled"`
	DebounceWindowMillis int  `yaml:"debounce_window_ms" json:"debounce_window_ms"`
}

// Config is the full supervisor configuration.
type Config struct {
	DataDir      string              `yaml:"data_dir" json:"data_dir"`
	LogLevel     string              `yaml:"log_level" json:"log_level"`
	Repositories []RepositoryConfig  `yaml:"repositories" json:"repositories"`
	Directories  []DirectoryConfig   `yaml:"directories" json:"directories"`
	Search       SearchConfig        `yaml:"search" json:"search"`
	Embeddings   EmbeddingConfig     `yaml:"embeddings" json:"embeddings"`
	Keyword      KeywordEngineConfig `yaml:"keyword" json:"keyword"`
	Rewrite      RewriteConfig       `yaml:"rewrite" json:"rewrite"`
	Watch        WatchConfig         `yaml:"watch" json:"watch"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		DataDir:  ".hybridsearch",
		LogLevel: "info",
		Search: SearchConfig{
			RRFConstant:     60,
			DefaultLimit:    10,
			FetchMultiplier: 3,
		},
		Embeddings: EmbeddingConfig{
			Model:      "static-v1",
			Device:     "cpu",
			Dimensions: 256,
			BatchSize:  32,
		},
		Keyword: KeywordEngineConfig{
			IndexName: "documents",
		},
		Rewrite: RewriteConfig{
			Enabled:   false,
			Endpoint:  "http://127.0.0.1:11434/api/generate",
			Model:     "rewriter-small",
			TimeoutMS: 5000,
		},
		Watch: WatchConfig{
			Enabled:              true,
			DebounceWindowMillis: 5000,
		},
	}
}

// Load reads a YAML source file at path, merges it over the defaults,
// applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, cerrors.New(cerrors.CodeConfigNotFound, fmt.Sprintf("config file not found: %s", path), err)
			}
			return nil, cerrors.New(cerrors.CodeConfigInvalid, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, cerrors.New(cerrors.CodeConfigInvalid, "failed to parse config YAML", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides makes env vars win over file and defaults for the
// handful of settings most commonly tuned per deployment.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HYBRIDSEARCH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("HYBRIDSEARCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("HYBRIDSEARCH_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("HYBRIDSEARCH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("HYBRIDSEARCH_REWRITE_ENDPOINT"); v != "" {
		c.Rewrite.Endpoint = v
	}
}

// Validate checks structural invariants: enabled
// repositories must point at an existing path, priorities must be
// known values, and source names/ids must be unique.
func (c *Config) Validate() error {
	var problems []string

	seenNames := make(map[string]bool)
	for _, r := range c.Repositories {
		if r.Name == "" {
			problems = append(problems, "repository entry missing name")
			continue
		}
		if seenNames[r.Name] {
			problems = append(problems, fmt.Sprintf("duplicate repository name: %s", r.Name))
		}
		seenNames[r.Name] = true

		if !r.Priority.Valid() {
			problems = append(problems, fmt.Sprintf("repository %s: invalid priority %q", r.Name, r.Priority))
		}

		if r.Enabled {
			info, err := os.Stat(r.Path)
			if err != nil || !info.IsDir() {
				problems = append(problems, fmt.Sprintf("repository %s: path does not exist or is not a directory: %s", r.Name, r.Path))
			}
		}
	}

	seenIDs := make(map[string]bool)
	for _, d := range c.Directories {
		if d.ID == "" {
			problems = append(problems, "directory entry missing id")
			continue
		}
		if seenIDs[d.ID] {
			problems = append(problems, fmt.Sprintf("duplicate directory id: %s", d.ID))
		}
		seenIDs[d.ID] = true

		if d.Enabled {
			info, err := os.Stat(d.Path)
			if err != nil || !info.IsDir() {
				problems = append(problems, fmt.Sprintf("directory %s: path does not exist or is not a directory: %s", d.ID, d.Path))
			}
		}
	}

	if len(problems) > 0 {
		return cerrors.New(cerrors.CodeConfigInvalid, "invalid configuration: "+strings.Join(problems, "; "), nil)
	}
	return nil
}
