package keywordindex

import "time"

// maxContentChars truncates indexed content per the document schema.
const maxContentChars = 100_000

// maxSnippetChars bounds a returned highlight snippet.
const maxSnippetChars = 600

// Document is one keyword-searchable record: a file, with enough
// denormalized path metadata to support the filterable fields and
// priority-ordered searchable fields of the schema.
type Document struct {
	ID             string
	FilePath       string
	FileName       string
	FolderName     string
	DirectoryPath  string
	RelativePath   string
	Extension      string
	SourceType     string
	SourceID       string
	Repository     string
	Content        string
	LastModified   time.Time
	Size           int64
}

// Filter is a single field-equality constraint. Values are OR'd
// together (multi-valued filter); Filters in a Query are AND'd.
type Filter struct {
	Field  string
	Values []string
}

// Query describes a keyword search request.
type Query struct {
	Text    string
	Filters []Filter
	Limit   int
}

// Hit is one scored search result, with the stored document fields
// needed to hydrate a HybridResult without a second lookup.
type Hit struct {
	ID           string
	Score        float64
	Snippet      string
	FilePath     string
	FileName     string
	FolderName   string
	RelativePath string
	Extension    string
	SourceType   string
	SourceID     string
	Repository   string
}
