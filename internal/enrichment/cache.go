package enrichment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// APICacheRecord is one row of the external-API cache (spec §3, §4.2).
// Headers are sanitised before storage: Authorization, api-key and
// x-api-key are stripped so rotating credentials never fragment the
// cache (invariant 1).
type APICacheRecord struct {
	CacheKey          string            `json:"cache_key"`
	Method            string            `json:"method"`
	URL               string            `json:"url"`
	Params            map[string]string `json:"params,omitempty"`
	HeadersSanitised  map[string]string `json:"headers_sanitised,omitempty"`
	ResponseBody      []byte            `json:"response_body"`
	ResponseStatus    int               `json:"response_status"`
	CreatedAt         time.Time         `json:"created_at"`
	ExpiresAt         time.Time         `json:"expires_at"`
	TenantID          string            `json:"tenant_id,omitempty"`
}

// sanitisedHeaderKeys lists the header names stripped before an API
// cache key is computed. Comparison is case-insensitive.
var sanitisedHeaderKeys = map[string]bool{
	"authorization": true,
	"api-key":       true,
	"x-api-key":     true,
}

// SanitiseHeaders returns a copy of headers with credential-bearing keys
// removed, matching the cache-key contract in spec §3/§4.2.
func SanitiseHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if sanitisedHeaderKeys[lower(k)] {
			continue
		}
		out[k] = v
	}
	return out
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// APICacheKey computes the deterministic cache key for an outbound HTTP
// request: SHA256 of the sorted-key JSON encoding of (url, params,
// sanitised headers). Method participates too, since the external-API
// cache is keyed per verb (spec §4.2's get/put both take method).
func APICacheKey(method, url string, params, headers map[string]string) string {
	payload := sortedJSON(map[string]any{
		"method":  method,
		"url":     url,
		"params":  params,
		"headers": SanitiseHeaders(headers),
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// LLMCacheRecord is one row of the LLM prompt/response cache (spec §3,
// §4.3). ResponseText holds the raw response text; when IsJSON is set,
// ResponseData also holds the JSON extracted from it.
type LLMCacheRecord struct {
	CacheKey     string          `json:"cache_key"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	Prompt       string          `json:"prompt"`
	IsJSON       bool            `json:"is_json"`
	OperationTag string          `json:"operation_tag"`
	Temperature  *float64        `json:"temperature,omitempty"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	ResponseText string          `json:"response_text,omitempty"`
	TokenUsage   TokenUsage      `json:"token_usage"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	TenantID     string          `json:"tenant_id,omitempty"`
}

// TokenUsage is returned alongside every uncached LLM response and stored
// in the LLM cache (spec §4.3 rule 4).
type TokenUsage struct {
	OperationTag     string  `json:"operation_tag"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	TotalCostUSD     float64 `json:"total_cost_in_usd"`
	Provider         string  `json:"provider"`
}

// CacheStats is a point-in-time hit/miss tally, shared by apicache and
// llmcache so internal/monitoring can read both through one interface.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// HitRate returns Hits/(Hits+Misses), or 0 when nothing has been recorded.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// LLMCacheKey computes the deterministic cache key for an LLM request:
// SHA256 of the sorted-key JSON encoding of
// (prompt, provider, model, is_json, operation_tag, temperature).
// A nil temperature and an explicit 0.0 are distinct keys — callers that
// care about the service default must pass nil, not 0.
func LLMCacheKey(prompt, provider, model string, isJSON bool, operationTag string, temperature *float64) string {
	payload := sortedJSON(map[string]any{
		"prompt":        prompt,
		"provider":      provider,
		"model":         model,
		"is_json":       isJSON,
		"operation_tag": operationTag,
		"temperature":   temperature,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// CombinedPrompt collapses a system/user split into the canonical string
// used for LLM cache keying and for providers with no native split
// (spec §4.3 rule 1).
func CombinedPrompt(system, user string) string {
	if system == "" {
		return user
	}
	return "<system>" + system + "</system>\n\n<user>" + user + "</user>"
}

// sortedJSON renders v as JSON with map keys in sorted order, mirroring
// Python's json.dumps(sort_keys=True) used by the source implementation's
// cache-key derivation. encoding/json already sorts map[string]* keys at
// every nesting level, so a direct Marshal is sufficient and
// deterministic across calls.
func sortedJSON(v map[string]any) []byte {
	b, _ := json.Marshal(v)
	return b
}
