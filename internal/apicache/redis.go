package apicache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// RedisStore is an optional front tier over another Store: reads check
// Redis first and fall through to next on a miss, populating Redis on
// the way back; writes go to both. Use this ahead of PostgresStore when
// many engine instances share a cache and sub-millisecond reads matter
// more than surviving a Redis outage (a Redis outage degrades to
// hitting next directly, never to failing the request).
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
	return "apicache:" + cacheKey
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, cacheKey string) (*enrichment.APICacheRecord, bool, error) {
	data, err := r.client.Get(ctx, redisKey(cacheKey)).Bytes()
	if err == nil {
		var rec enrichment.APICacheRecord
		if jsonErr := json.Unmarshal(data, &rec); jsonErr == nil {
			return &rec, true, nil
		}
		// Corrupt cache entry: fall through to next rather than failing.
	} else if err != redis.Nil {
		// Redis reachability issues are not fatal; degrade to next tier.
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
func (r *RedisStore) Put(ctx context.Context, rec enrichment.APICacheRecord) error {
	if err := r.next.Put(ctx, rec); err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "apicache redis: marshal")
	}
	if err := r.client.Set(ctx, redisKey(rec.CacheKey), body, r.ttl).Err(); err != nil {
		// The durable tier already has the record; a Redis write failure
		// only costs a future cache miss, not correctness.
		return nil
	}
	return nil
}

// DeleteExpired implements Store. Redis entries expire on their own TTL;
// only the durable tier needs active sweeping.
func (r *RedisStore) DeleteExpired(ctx context.Context) (int, error) {
	return r.next.DeleteExpired(ctx)
}

// Close implements Store.
func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		return eris.Wrap(err, "apicache redis: close")
	}
	return r.next.Close()
}
