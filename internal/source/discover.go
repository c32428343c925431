package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// discoverExcludeDirs are never descended into while looking for VCS
// roots; finding a repository nested under one of these would almost
// always be noise (a vendored copy, not something to index).
var discoverExcludeDirs = map[string]bool{
	"node_modules": true, ".git": true, "vendor": true, "dist": true,
	"build": true, "target": true, ".venv": true, "__pycache__": true,
}

// CandidateSource is one filesystem location discovery() found that
// looks like an indexable VCS root.
type CandidateSource struct {
	Path           string
	Name           string
	CloneIdentity  string
	AlreadyKnown   bool
}

// Discover walks root up to maxDepth looking for directories that
// contain a .git marker, skipping common build/vendor directories.
// Results are annotated with whether the registry already knows about
// them and, for each, a normalized clone identity derived from the
// remote URL so the caller can spot the same repository checked out
// twice under different paths.
func (r *Registry) Discover(root string, maxDepth int) ([]CandidateSource, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve discovery root: %w", err)
	}

	known := make(map[string]bool)
	for _, s := range r.List() {
		abs, err := filepath.Abs(s.Path)
		if err == nil {
			known[abs] = true
		}
	}

	var candidates []CandidateSource
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		if depth > maxDepth {
			return nil
		}

		gitMarker := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitMarker); err == nil {
			identity := ""
			if info.IsDir() {
				identity = cloneIdentity(dir)
			} else {
				identity = cloneIdentity(dir) // .git file form: dir/.git/config does not exist, so identity stays empty
			}
			candidates = append(candidates, CandidateSource{
				Path:          dir,
				Name:          filepath.Base(dir),
				CloneIdentity: identity,
				AlreadyKnown:  known[dir],
			})
			return nil // don't descend into a repository we just found
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			name := entry.Name()
			if strings.HasPrefix(name, ".") && name != ".git" {
				continue
			}
			if discoverExcludeDirs[name] {
				continue
			}
			if err := walk(filepath.Join(dir, name), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(absRoot, 0); err != nil {
		return nil, err
	}
	return candidates, nil
}

// cloneIdentity reads a repository's .git/config, extracts the
// "origin" remote URL, and normalizes it to a stable identity so the
// same repository cloned twice (once over SSH, once over HTTPS, or
// onto two machines) is recognized as one clone.
func cloneIdentity(repoDir string) string {
	data, err := os.ReadFile(filepath.Join(repoDir, ".git", "config"))
	if err != nil {
		return ""
	}

	url := remoteOriginURL(string(data))
	if url == "" {
		return ""
	}
	return normalizeRemoteURL(url)
}

// remoteOriginURL extracts the url= value from the [remote "origin"]
// section of a git config file.
func remoteOriginURL(config string) string {
	lines := strings.Split(config, "\n")
	inOrigin := false
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "[remote") {
			inOrigin = strings.Contains(line, `"origin"`)
			continue
		}
		if strings.HasPrefix(line, "[") {
			inOrigin = false
			continue
		}
		if !inOrigin {
			continue
		}
		if key, value, ok := strings.Cut(line, "="); ok && strings.TrimSpace(key) == "url" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// normalizeRemoteURL collapses the SSH and HTTPS spellings of the same
// remote ("git@host:org/repo.git" vs "https://host/org/repo.git") to
// the identical "host/org/repo" identity string.
func normalizeRemoteURL(url string) string {
	url = strings.TrimSuffix(strings.TrimSpace(url), ".git")

	if strings.HasPrefix(url, "git@") {
		rest := strings.TrimPrefix(url, "git@")
		host, path, ok := strings.Cut(rest, ":")
		if ok {
			return host + "/" + path
		}
	}

	for _, prefix := range []string{"https://", "http://", "ssh://git@", "ssh://"} {
		if strings.HasPrefix(url, prefix) {
			return strings.TrimPrefix(url, prefix)
		}
	}

	return url
}
