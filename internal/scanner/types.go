// Package scanner discovers indexable files within a source (a
// repository or a managed directory), applying include/exclude glob
// patterns and decoding their contents to text.
package scanner

import "time"

// ContentType classifies a scanned file for downstream chunking and
// ranking decisions.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
	ContentTypeConfig   ContentType = "config"
)

// DefaultMaxFileSize is the size above which a file is skipped, per
// the scanner's invariant that nothing larger than 10 MiB is read.
const DefaultMaxFileSize = 10 * 1024 * 1024

// ScannedFile is one file emitted by a scan: its location, its
// decoded text, and enough metadata for chunking and ranking.
type ScannedFile struct {
	AbsPath     string
	RelPath     string
	SourceRef   string
	ContentType ContentType
	Language    string
	Size        int64
	ModTime     time.Time
	Content     string
}

// ScanOptions configures a single scan pass.
type ScanOptions struct {
	RootDir         string
	SourceRef       string
	IncludePatterns []string
	ExcludePatterns []string
	MaxFileSize     int64
	FollowSymlinks  bool
}

// ScanResult is delivered on a scan's result channel: exactly one of
// File or Error is set.
type ScanResult struct {
	File  *ScannedFile
	Error error
}

var languageByExt = map[string]string{
	".go": "go", ".js": "javascript", ".jsx": "javascript", ".mjs": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".py": "python", ".pyi": "python",
	".rb": "ruby", ".rs": "rust", ".java": "java", ".kt": "kotlin",
	".c": "c", ".h": "c", ".cpp": "cpp", ".hpp": "cpp", ".cc": "cpp",
	".cs": "csharp", ".php": "php", ".swift": "swift", ".scala": "scala",
	".sh": "shell", ".bash": "shell", ".zsh": "shell",
	".html": "html", ".htm": "html", ".css": "css", ".scss": "scss",
	".json": "json", ".yaml": "yaml", ".yml": "yaml", ".toml": "toml",
	".xml": "xml", ".ini": "ini", ".proto": "protobuf",
	".md": "markdown", ".mdx": "markdown", ".markdown": "markdown", ".rst": "rst",
	".txt": "text",
	"Dockerfile":  "dockerfile",
	"Makefile":    "makefile",
	"GNUmakefile": "makefile",
}

var contentTypeByLanguage = map[string]ContentType{
	"go": ContentTypeCode, "javascript": ContentTypeCode, "typescript": ContentTypeCode,
	"python": ContentTypeCode, "ruby": ContentTypeCode, "rust": ContentTypeCode,
	"java": ContentTypeCode, "kotlin": ContentTypeCode, "c": ContentTypeCode,
	"cpp": ContentTypeCode, "csharp": ContentTypeCode, "php": ContentTypeCode,
	"swift": ContentTypeCode, "scala": ContentTypeCode, "shell": ContentTypeCode,
	"html": ContentTypeCode, "css": ContentTypeCode, "scss": ContentTypeCode,
	"protobuf": ContentTypeCode,
	"markdown": ContentTypeMarkdown, "rst": ContentTypeMarkdown,
	"text": ContentTypeText,
	"json": ContentTypeConfig, "yaml": ContentTypeConfig, "toml": ContentTypeConfig,
	"xml": ContentTypeConfig, "ini": ContentTypeConfig, "dockerfile": ContentTypeConfig,
	"makefile": ContentTypeConfig,
}

// DetectLanguage infers a language tag from a file's base name or
// extension; it returns "" when nothing is recognized.
func DetectLanguage(relPath string) string {
	base := baseName(relPath)
	if lang, ok := languageByExt[base]; ok {
		return lang
	}
	if lang, ok := languageByExt[extension(relPath)]; ok {
		return lang
	}
	return ""
}

// DetectContentType maps a language tag to its content type bucket,
// defaulting to plain text.
func DetectContentType(language string) ContentType {
	if ct, ok := contentTypeByLanguage[language]; ok {
		return ct
	}
	return ContentTypeText
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
