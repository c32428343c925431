package scanner

import (
	"path/filepath"
	"strings"
)

// matchDirPattern reports whether a directory's relative path matches
// a `**/name` or `name/**` exclude glob, so the walker can prune the
// whole subtree instead of filtering every file beneath it.
func matchDirPattern(relPath, pattern string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		suffix = strings.TrimSuffix(suffix, "/**")
		for _, part := range strings.Split(relPath, string(filepath.Separator)) {
			if part == suffix {
				return true
			}
		}
		return false
	}

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	return relPath == pattern || strings.HasPrefix(relPath, pattern+string(filepath.Separator))
}

// matchFilePattern reports whether a file matches a single include or
// exclude glob. Supports `**/*.ext`, `dir/**`, and ordinary
// filepath.Match-style globs on the base name.
func matchFilePattern(baseName, relPath, pattern string) bool {
	if strings.HasSuffix(pattern, "/**") && !strings.HasPrefix(pattern, "**/") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if strings.HasPrefix(suffix, "*.") {
			ext := strings.TrimPrefix(suffix, "*")
			return strings.HasSuffix(baseName, ext)
		}
		parts := strings.Split(relPath, string(filepath.Separator))
		for i, part := range parts {
			if part == suffix {
				return true
			}
			if i < len(parts)-1 && matchDirPattern(strings.Join(parts[:i+1], string(filepath.Separator)), pattern) {
				return true
			}
		}
		return false
	}

	if strings.Contains(pattern, string(filepath.Separator)) {
		dir := filepath.Dir(pattern)
		filePattern := filepath.Base(pattern)
		if filepath.Dir(relPath) != dir {
			return false
		}
		matched, err := filepath.Match(filePattern, baseName)
		return err == nil && matched
	}

	matched, err := filepath.Match(pattern, baseName)
	return err == nil && matched
}

// MatchesExcludePattern reports whether relPath matches any of the
// given exclude globs, using the same matcher the scanner applies to
// files during a walk. Exported so other packages (the watcher) can
// apply an equivalent exclusion list to individual filesystem events
// without duplicating the glob semantics.
func MatchesExcludePattern(relPath string, patterns []string) bool {
	base := filepath.Base(relPath)
	for _, p := range patterns {
		if matchFilePattern(base, relPath, p) {
			return true
		}
	}
	return false
}

// matchesAny reports whether relPath matches at least one pattern in
// patterns. An empty pattern set matches everything.
func matchesAny(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	base := filepath.Base(relPath)
	for _, p := range patterns {
		if matchFilePattern(base, relPath, p) {
			return true
		}
	}
	return false
}
