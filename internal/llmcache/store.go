// Package llmcache implements the LLM prompt/response cache (spec
// §4.3): every generate_content/generate_search_content call is keyed on
// enrichment.LLMCacheKey before a provider is invoked.
package llmcache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// Store is the persistence contract every backend implements. It also
// satisfies internal/llm.Cache, so any Store can be handed directly to
// an llm.Client.
type Store interface {
	Get(ctx context.Context, cacheKey string) (*enrichment.LLMCacheRecord, bool, error)
	Put(ctx context.Context, rec enrichment.LLMCacheRecord) error
	DeleteExpired(ctx context.Context) (int, error)
	Close() error
}

// Cache adds expiry-aware Get and default-TTL Put around a Store.
type Cache struct {
	store Store
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// New wraps store with a default TTL.
func New(store Store, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 7 * 24 * time.Hour
	}
	return &Cache{store: store, ttl: defaultTTL}
}

// Get implements internal/llm.Cache, honouring expiry on top of the
// backend's raw lookup.
func (c *Cache) Get(ctx context.Context, key string) (*enrichment.LLMCacheRecord, bool, error) {
	rec, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok || rec.ExpiresAt.Before(time.Now()) {
		if err == nil {
			c.misses.Add(1)
		}
		return nil, false, err
	}
	c.hits.Add(1)
	return rec, true, nil
}

// Stats returns the cumulative hit/miss tally since process start.
func (c *Cache) Stats() enrichment.CacheStats {
	return enrichment.CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Put implements internal/llm.Cache, applying the cache's default TTL
// when rec.ExpiresAt is zero. Refuses refusal/error/empty responses
// (spec invariant 3) as a backstop independent of the caller's own gate.
func (c *Cache) Put(ctx context.Context, rec enrichment.LLMCacheRecord) error {
	if rec.ResponseText == "" || !isCacheableRecord(rec) {
		return nil
	}
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = time.Now().Add(c.ttl)
	}
	return c.store.Put(ctx, rec)
}

// isCacheableRecord reports whether rec's JSON response data is eligible
// for caching: an `"error"` or `"refusal"` key, or an empty object,
// disqualifies it. Non-JSON records have nothing to inspect.
func isCacheableRecord(rec enrichment.LLMCacheRecord) bool {
	if !rec.IsJSON || len(rec.ResponseData) == 0 {
		return true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(rec.ResponseData, &obj); err != nil {
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

// DeleteExpired sweeps stale rows from the backend.
func (c *Cache) DeleteExpired(ctx context.Context) (int, error) {
	return c.store.DeleteExpired(ctx)
}

// Close releases the backend's resources.
func (c *Cache) Close() error {
	return c.store.Close()
}
