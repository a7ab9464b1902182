// Package llm implements the uniform LLM provider abstraction (spec
// §4.3): one capability set over at least two providers, owning caching,
// keying, retries, and provider fallback.
package llm

import (
	"encoding/json"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// Prompt carries both prompt-passing modes named in spec §4.3 rule 1.
// Exactly one of Combined or (System, User) is meaningful; callers that
// already have a combined string set only Combined.
type Prompt struct {
	System   string
	User     string
	Combined string
}

// Text returns the canonical combined form used for cache keys and by
// providers with no native system/user split.
func (p Prompt) Text() string {
	if p.Combined != "" {
		return p.Combined
	}
	return enrichment.CombinedPrompt(p.System, p.User)
}

// ContentRequest is one generate_content call (spec §4.3).
type ContentRequest struct {
	Prompt         Prompt
	IsJSON         bool
	OperationTag   string
	Temperature    *float64
	ThinkingBudget enrichment.ThinkingBudget
	ForceRefresh   bool
	Model          string // overrides the provider/client default.
	TenantID       string
}

// SearchRequest is one generate_search_content call.
type SearchRequest struct {
	Prompt            Prompt
	SearchContextSize enrichment.SearchContextSize
	UserLocation      string
	OperationTag      string
	Temperature       *float64
	ForceRefresh      bool
	Model             string
	TenantID          string
}

// StructuredSearchRequest is one generate_structured_search_content call.
type StructuredSearchRequest struct {
	SearchRequest
	ResponseSchema json.RawMessage
}

// Source is one web source a search-grounded call was grounded on.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchMetadata is attached to search-grounded responses (spec §4.3
// rule 5).
type SearchMetadata struct {
	Sources          []Source          `json:"sources,omitempty"`
	SourcesMarkdown  string            `json:"sources_markdown,omitempty"`
	SegmentToSource  map[string]string `json:"segment_to_source,omitempty"`
}

// Response is the uniform result of any of the three capabilities.
type Response struct {
	// Value holds the deserialised object when IsJSON was requested and
	// extraction succeeded; Text holds the raw/unstructured string form.
	Value          json.RawMessage
	Text           string
	TokenUsage     enrichment.TokenUsage
	SearchMetadata *SearchMetadata
	Cached         bool
	// ExtractionFailed is set when JSON extraction exhausted every
	// repair strategy (spec §4.3 rule 7) — Value is {} in that case.
	ExtractionFailed bool
}
