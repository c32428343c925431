// Package rewrite turns a raw query into keyword and semantic forms
// plus advisory filters, by asking a small local LLM for a structured
// rewrite: a pooled *http.Client talking to a local Ollama-compatible
// endpoint, context-scoped per-request timeouts rather than a
// client-wide timeout, and JSON request/response types matching
// Ollama's /api/generate shape for a text completion rather than an
// embedding.
package rewrite

import "time"

// DefaultHost is the local Ollama-compatible endpoint used when no
// host is configured.
const DefaultHost = "http://localhost:11434"

// DefaultModel is the small instruction model used for rewriting.
const DefaultModel = "qwen2.5:0.5b-instruct"

// DefaultTimeout bounds a single rewrite call.
const DefaultTimeout = 2 * time.Second

// temperature and maxTokens keep the rewrite deterministic-ish and
// cheap.
const (
	temperature = 0.1
	maxTokens   = 256
)

// Filters are advisory hints extracted from the query. Callers'
// explicit filters always win over these.
type Filters struct {
	Extensions []string `json:"extensions"`
	FolderName *string  `json:"folder_name"`
}

// Rewrite is the structured result of rewriting a query.
type Rewrite struct {
	Keywords       string  `json:"keywords"`
	SemanticIntent string  `json:"semantic_intent"`
	Filters        Filters `json:"filters"`
}

// fallback returns the identity rewrite used whenever the LLM call
// fails in any way: transport error, timeout, malformed JSON, or a
// response that doesn't match the expected schema. The rewriter never
// fails the query it's trying to help.
func fallback(text string) Rewrite {
	return Rewrite{
		Keywords:       text,
		SemanticIntent: text,
		Filters:        Filters{Extensions: nil, FolderName: nil},
	}
}

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format"`
	Options map[string]interface{} `json:"options"`
}

// generateResponse is the Ollama /api/generate response body, with
// stream=false this is the complete, single JSON object.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

const systemPrompt = `You rewrite a search query over a codebase and its documentation into a JSON object with exactly these fields:
{"keywords": string, "semantic_intent": string, "filters": {"extensions": [string], "folder_name": string|null}}
"keywords" is a short space-separated list of literal terms worth matching exactly.
"semantic_intent" restates what the user is looking for, in plain language, for a semantic search.
"filters" are optional hints: file extensions (with a leading dot) or a folder name, only when the query clearly implies one.
Respond with only the JSON object, no other text.`
