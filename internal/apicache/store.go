// Package apicache implements the external-API response cache (spec
// §4.2): cached_request wraps an outbound HTTP call, keyed on
// enrichment.APICacheKey, with credential headers already stripped
// before the key is computed.
package apicache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// Store is the persistence contract every backend implements.
type Store interface {
	Get(ctx context.Context, cacheKey string) (*enrichment.APICacheRecord, bool, error)
	Put(ctx context.Context, rec enrichment.APICacheRecord) error
	DeleteExpired(ctx context.Context) (int, error)
	Close() error
}

// Fetcher performs the underlying HTTP call when the cache misses.
type Fetcher func(ctx context.Context) (body []byte, status int, err error)

// Cache wraps a Store with the get/put/cached_request operations named
// in spec §4.2.
type Cache struct {
	store Store
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// New wraps store with a default TTL applied when a caller doesn't pass
// one explicitly to CachedRequest.
func New(store Store, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &Cache{store: store, ttl: defaultTTL}
}

// Get looks up a cache row by its pre-computed key, honouring expiry.
func (c *Cache) Get(ctx context.Context, cacheKey string) (*enrichment.APICacheRecord, bool, error) {
	rec, ok, err := c.store.Get(ctx, cacheKey)
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

// Put stores a response under the key APICacheKey derives from method,
// url, params and headers, with the cache's default TTL.
func (c *Cache) Put(ctx context.Context, method, url string, params, headers map[string]string, body []byte, status int, tenantID string) error {
	now := time.Now()
	rec := enrichment.APICacheRecord{
		CacheKey:         enrichment.APICacheKey(method, url, params, headers),
		Method:           method,
		URL:              url,
		Params:           params,
		HeadersSanitised: enrichment.SanitiseHeaders(headers),
		ResponseBody:     body,
		ResponseStatus:   status,
		CreatedAt:        now,
		ExpiresAt:        now.Add(c.ttl),
		TenantID:         tenantID,
	}
	return c.store.Put(ctx, rec)
}

// CachedRequest is the single entry point callers use: it checks the
// cache, and on a miss invokes fetch and stores the result. forceRefresh
// bypasses the lookup but still populates the cache afterwards.
func (c *Cache) CachedRequest(ctx context.Context, method, url string, params, headers map[string]string, tenantID string, forceRefresh bool, fetch Fetcher) ([]byte, int, bool, error) {
	key := enrichment.APICacheKey(method, url, params, headers)

	if !forceRefresh {
		if rec, ok, err := c.Get(ctx, key); err != nil {
			return nil, 0, false, err
		} else if ok {
			return rec.ResponseBody, rec.ResponseStatus, true, nil
		}
	}

	body, status, err := fetch(ctx)
	if err != nil {
		return nil, 0, false, err
	}

	// Spec §4.2: only responses below the error threshold are cached.
	if status < 400 {
		if err := c.Put(ctx, method, url, params, headers, body, status, tenantID); err != nil {
			return body, status, false, err
		}
	}
	return body, status, false, nil
}
