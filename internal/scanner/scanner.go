package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// defaultExcludeDirs are pruned from every scan regardless of the
// source's own exclude patterns; they are never useful search content
// and walking into them wastes most of a scan's time.
var defaultExcludeDirs = []string{
	"**/node_modules/**", "**/.git/**", "**/vendor/**", "**/dist/**",
	"**/build/**", "**/target/**", "**/.venv/**", "**/__pycache__/**",
}

// Scanner walks a source's file tree and emits ScannedFile values for
// every file that passes the include/exclude/size/decode checks.
type Scanner struct {
	logger *slog.Logger
}

// New creates a Scanner. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{logger: logger}
}

// Scan walks opts.RootDir and streams results on the returned channel,
// which is closed once the walk completes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (<-chan ScanResult, error) {
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root directory: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	results := make(chan ScanResult, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, maxSize, results)
	}()
	return results, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts ScanOptions, maxSize int64, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			s.logger.Warn("scan: skipping unreadable path", "path", path, "error", err)
			return nil
		}

		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil || relPath == "." {
			return nil
		}

		if d.IsDir() {
			if s.excludedDir(relPath, opts.ExcludePatterns) {
				return fs.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}

		if !s.include(relPath, opts) {
			return nil
		}

		fileInfo, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if fileInfo.Size() > maxSize {
			s.logger.Warn("scan: skipping oversize file", "path", relPath, "size", fileInfo.Size())
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			s.logger.Warn("scan: skipping unreadable file", "path", relPath, "error", readErr)
			return nil
		}
		if isBinary(data) {
			return nil
		}
		content, ok := decodeText(data)
		if !ok {
			s.logger.Warn("scan: skipping undecodable file", "path", relPath)
			return nil
		}

		language := DetectLanguage(relPath)
		file := &ScannedFile{
			AbsPath:     path,
			RelPath:     relPath,
			SourceRef:   opts.SourceRef,
			ContentType: DetectContentType(language),
			Language:    language,
			Size:        fileInfo.Size(),
			ModTime:     fileInfo.ModTime(),
			Content:     content,
		}

		select {
		case results <- ScanResult{File: file}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

func (s *Scanner) excludedDir(relPath string, custom []string) bool {
	for _, pattern := range defaultExcludeDirs {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	for _, pattern := range custom {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

func (s *Scanner) include(relPath string, opts ScanOptions) bool {
	for _, pattern := range opts.ExcludePatterns {
		if matchFilePattern(filepath.Base(relPath), relPath, pattern) {
			return false
		}
	}
	return matchesAny(relPath, opts.IncludePatterns)
}
