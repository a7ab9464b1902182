package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/jsonrepair"
	"github.com/sells-group/enrichment-engine/internal/resilience"
)

// Cache is the subset of internal/llmcache.Store the Client depends on.
// Declared here (consumer side) to keep internal/llm free of a direct
// dependency on the cache's storage backend.
type Cache interface {
	Get(ctx context.Context, key string) (*enrichment.LLMCacheRecord, bool, error)
	Put(ctx context.Context, rec enrichment.LLMCacheRecord) error
}

// Client is the uniform facade over the two configured providers
// implementing spec §4.3's three capabilities. It owns caching, retry,
// and capacity-triggered fallback to a secondary provider/model.
type Client struct {
	primary       Provider
	fallback      Provider // may be nil; used only on capacity errors (rule 6).
	fallbackModel string
	cache         Cache
	breaker       *gobreaker.CircuitBreaker
	ttl           time.Duration
	log           *zap.Logger
	jsonPool      *jsonrepair.Pool // may be nil; falls back to inline extraction.
}

// Config configures a Client.
type Config struct {
	Primary       Provider
	Fallback      Provider
	FallbackModel string
	Cache         Cache
	CacheTTL      time.Duration
	Logger        *zap.Logger
	// JSONPool offloads JSON extraction/repair (spec §9 "CPU-bound
	// offload") onto a worker pool instead of running it inline on the
	// calling goroutine. Nil runs extraction inline.
	JSONPool *jsonrepair.Pool
}

// NewClient constructs a Client. Fallback may be left nil when no
// secondary provider is configured, in which case capacity errors are
// simply retried against the primary.
func NewClient(cfg Config) *Client {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	breakerSettings := gobreaker.Settings{
		Name:    "llm-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("llm circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &Client{
		primary:       cfg.Primary,
		fallback:      cfg.Fallback,
		fallbackModel: cfg.FallbackModel,
		cache:         cfg.Cache,
		breaker:       gobreaker.NewCircuitBreaker(breakerSettings),
		ttl:           ttl,
		log:           log,
		jsonPool:      cfg.JSONPool,
	}
}

// extractJSON runs the permissive JSON extraction pipeline, offloading it
// to c.jsonPool when one is configured. Pool errors (context cancelled
// while queued) fall back to running extraction inline rather than
// failing the whole call over a scheduling hiccup.
func (c *Client) extractJSON(ctx context.Context, text string) (json.RawMessage, bool) {
	if c.jsonPool == nil {
		return ExtractJSON(text)
	}
	res, err := c.jsonPool.Extract(ctx, text, ExtractJSON)
	if err != nil {
		return ExtractJSON(text)
	}
	return res.Value, res.ExtractionFailed
}

// GenerateContent runs req.Prompt through the primary provider (falling
// back to the secondary on a capacity error), with LLM-response caching
// keyed per spec invariant 2/3.
func (c *Client) GenerateContent(ctx context.Context, req ContentRequest) (Response, error) {
	// The cache key is keyed on the requested model (which may be empty,
	// meaning "provider default") rather than the resolved model, so a
	// cache hit/miss doesn't depend on which provider eventually serves
	// a fallback-triggered retry.
	key := enrichment.LLMCacheKey(req.Prompt.Text(), c.primary.Name(), req.Model, req.IsJSON, req.OperationTag, req.Temperature)

	if !req.ForceRefresh {
		if rec, ok, err := c.lookupCache(ctx, key); err != nil {
			c.log.Warn("llm cache lookup failed", zap.Error(err))
		} else if ok {
			return responseFromCache(rec, req.IsJSON), nil
		}
	}

	raw, provider, err := c.completeWithFallback(ctx, req.Model, req.Prompt, req.IsJSON, req.Temperature)
	if err != nil {
		return Response{}, err
	}

	resp := c.buildResponse(ctx, raw, req.IsJSON)
	c.storeCache(ctx, key, provider, raw.model, req.Prompt.Text(), req.IsJSON, req.OperationTag, req.Temperature, raw, resp)
	return resp, nil
}

// GenerateSearchContent runs a search-grounded call, always routed to a
// provider with SupportsNativeSearch()==true.
func (c *Client) GenerateSearchContent(ctx context.Context, req SearchRequest) (Response, error) {
	provider := c.pickSearchProvider()
	if provider == nil {
		return Response{}, eris.New("llm: no search-capable provider configured")
	}

	key := enrichment.LLMCacheKey(req.Prompt.Text(), provider.Name(), req.Model, false, req.OperationTag, req.Temperature)
	if !req.ForceRefresh {
		if rec, ok, err := c.lookupCache(ctx, key); err != nil {
			c.log.Warn("llm cache lookup failed", zap.Error(err))
		} else if ok {
			return responseFromCache(rec, false), nil
		}
	}

	var raw rawResult
	err := resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		r, err := provider.CompleteSearch(ctx, req.Model, req.Prompt, req.SearchContextSize, req.Temperature)
		if err != nil {
			return err
		}
		raw = r
		return nil
	})
	if err != nil {
		return Response{}, eris.Wrap(err, "llm: search content")
	}

	resp := c.buildResponse(ctx, raw, false)
	c.storeCache(ctx, key, provider.Name(), raw.model, req.Prompt.Text(), false, req.OperationTag, req.Temperature, raw, resp)
	return resp, nil
}

// GenerateStructuredSearchContent runs a search-grounded call that also
// requests schema-conformant JSON output where the provider supports it
// natively, falling back to prompt-embedded-schema + extraction otherwise.
func (c *Client) GenerateStructuredSearchContent(ctx context.Context, req StructuredSearchRequest) (Response, error) {
	augmented := req.SearchRequest
	if len(req.ResponseSchema) > 0 {
		augmented.Prompt.User = augmented.Prompt.User + "\n\nRespond with JSON matching this schema:\n" + string(req.ResponseSchema)
	}
	resp, err := c.GenerateSearchContent(ctx, augmented)
	if err != nil {
		return Response{}, err
	}
	resp.Value, resp.ExtractionFailed = c.extractJSON(ctx, resp.Text)
	return resp, nil
}

func (c *Client) pickSearchProvider() Provider {
	if c.primary != nil && c.primary.SupportsNativeSearch() {
		return c.primary
	}
	if c.fallback != nil && c.fallback.SupportsNativeSearch() {
		return c.fallback
	}
	return nil
}

// completeWithFallback tries the primary provider, retrying transient
// errors via internal/resilience, and switches to the fallback
// provider/model when the error looks like a provider capacity signal
// (spec §4.3 rule 6). The circuit breaker wraps the primary provider
// only: a fallback call that itself fails is returned as-is rather than
// counted against the primary's breaker.
func (c *Client) completeWithFallback(ctx context.Context, model string, prompt Prompt, isJSON bool, temperature *float64) (rawResult, string, error) {
	breakerResult, err := c.breaker.Execute(func() (any, error) {
		var r rawResult
		retryErr := resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
			rr, err := c.primary.Complete(ctx, model, prompt, isJSON, temperature)
			if err != nil {
				return err
			}
			r = rr
			return nil
		})
		return r, retryErr
	})

	if err == nil {
		return breakerResult.(rawResult), c.primary.Name(), nil
	}

	if c.fallback == nil || !resilience.IsLLMCapacityError(err) {
		return rawResult{}, "", eris.Wrap(err, "llm: generate content")
	}

	c.log.Warn("llm falling back to secondary provider", zap.String("primary", c.primary.Name()), zap.Error(err))

	var r rawResult
	retryErr := resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		rr, err := c.fallback.Complete(ctx, c.fallbackModel, prompt, isJSON, temperature)
		if err != nil {
			return err
		}
		r = rr
		return nil
	})
	if retryErr != nil {
		return rawResult{}, "", eris.Wrap(retryErr, "llm: generate content (fallback provider)")
	}
	return r, c.fallback.Name(), nil
}

func (c *Client) buildResponse(ctx context.Context, raw rawResult, isJSON bool) Response {
	resp := Response{Text: raw.text, TokenUsage: raw.usage, SearchMetadata: raw.search}
	if isJSON {
		resp.Value, resp.ExtractionFailed = c.extractJSON(ctx, raw.text)
	}
	return resp
}

func (c *Client) lookupCache(ctx context.Context, key string) (*enrichment.LLMCacheRecord, bool, error) {
	if c.cache == nil {
		return nil, false, nil
	}
	return c.cache.Get(ctx, key)
}

func (c *Client) storeCache(ctx context.Context, key, provider, model, prompt string, isJSON bool, operationTag string, temperature *float64, raw rawResult, resp Response) {
	if c.cache == nil {
		return
	}
	// Invariant 3: never cache empty, extraction-failed, or refusal/error
	// responses.
	if raw.text == "" || resp.ExtractionFailed || !isCacheableContent(isJSON, resp.Value) {
		return
	}
	rec := enrichment.LLMCacheRecord{
		CacheKey:     key,
		Provider:     provider,
		Model:        model,
		Prompt:       prompt,
		IsJSON:       isJSON,
		OperationTag: operationTag,
		Temperature:  temperature,
		ResponseData: resp.Value,
		ResponseText: raw.text,
		TokenUsage:   raw.usage,
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(c.ttl),
	}
	if err := c.cache.Put(ctx, rec); err != nil {
		c.log.Warn("llm cache store failed", zap.Error(err))
	}
}

// isCacheableContent reports whether a response's JSON object is eligible
// for caching (invariant 3): an `"error"` or `"refusal"` key, or an empty
// object, disqualifies it. Non-JSON responses have nothing to inspect and
// are always cacheable here (the raw.text/ExtractionFailed gate already
// covers them).
func isCacheableContent(isJSON bool, value json.RawMessage) bool {
	if !isJSON || len(value) == 0 {
		return true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(value, &obj); err != nil {
		return true
	}
	if len(obj) == 0 {
		return false
	}
	if _, ok := obj["error"]; ok {
		return false
	}
	if _, ok := obj["refusal"]; ok {
		return false
	}
	return true
}

func responseFromCache(rec *enrichment.LLMCacheRecord, isJSON bool) Response {
	resp := Response{
		Text:       rec.ResponseText,
		TokenUsage: rec.TokenUsage,
		Cached:     true,
	}
	if isJSON {
		resp.Value = rec.ResponseData
	}
	return resp
}
