package llmcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// RedisStore fronts another Store the same way apicache.RedisStore does:
// read-through with backfill, write-through, degrade to next on a Redis
// outage.
type RedisStore struct {
	client *redis.Client
	next   Store
	ttl    time.Duration
}

// NewRedisStore wraps next with a Redis front tier.
func NewRedisStore(client *redis.Client, next Store, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, next: next, ttl: ttl}
}

func redisKey(cacheKey string) string {
	return "llmcache:" + cacheKey
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, cacheKey string) (*enrichment.LLMCacheRecord, bool, error) {
	data, err := r.client.Get(ctx, redisKey(cacheKey)).Bytes()
	if err == nil {
		var rec enrichment.LLMCacheRecord
		if jsonErr := json.Unmarshal(data, &rec); jsonErr == nil {
			return &rec, true, nil
		}
	} else if err != redis.Nil {
		return r.next.Get(ctx, cacheKey)
	}

	rec, ok, err := r.next.Get(ctx, cacheKey)
	if err != nil || !ok {
		return rec, ok, err
	}
	if body, marshalErr := json.Marshal(rec); marshalErr == nil {
		_ = r.client.Set(ctx, redisKey(cacheKey), body, r.ttl).Err()
	}
	return rec, true, nil
}

// Put implements Store.
func (r *RedisStore) Put(ctx context.Context, rec enrichment.LLMCacheRecord) error {
	if err := r.next.Put(ctx, rec); err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "llmcache redis: marshal")
	}
	_ = r.client.Set(ctx, redisKey(rec.CacheKey), body, r.ttl).Err()
	return nil
}

// DeleteExpired implements Store.
func (r *RedisStore) DeleteExpired(ctx context.Context) (int, error) {
	return r.next.DeleteExpired(ctx)
}

// Close implements Store.
func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		return eris.Wrap(err, "llmcache redis: close")
	}
	return r.next.Close()
}
