package apicache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_PutGetRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := enrichment.APICacheRecord{
		CacheKey:         "key-1",
		Method:           "GET",
		URL:              "https://api.example.com/v1/company",
		Params:           map[string]string{"domain": "acme.com"},
		HeadersSanitised: map[string]string{"Accept": "application/json"},
		ResponseBody:     []byte(`{"name":"Acme"}`),
		ResponseStatus:   200,
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Put(ctx, rec))

	got, ok, err := store.Get(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.URL, got.URL)
	assert.Equal(t, rec.Params, got.Params)
	assert.Equal(t, rec.ResponseBody, got.ResponseBody)
}

func TestSQLiteStore_GetMiss(t *testing.T) {
	store := newTestSQLiteStore(t)
	_, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_CachedRequest_MissThenHit(t *testing.T) {
	store := newTestSQLiteStore(t)
	cache := New(store, time.Hour)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) ([]byte, int, error) {
		calls++
		return []byte(`{"ok":true}`), 200, nil
	}

	body1, status1, cached1, err := cache.CachedRequest(ctx, "GET", "https://x", nil, nil, "", false, fetch)
	require.NoError(t, err)
	assert.False(t, cached1)
	assert.Equal(t, 200, status1)
	assert.Equal(t, []byte(`{"ok":true}`), body1)

	body2, _, cached2, err := cache.CachedRequest(ctx, "GET", "https://x", nil, nil, "", false, fetch)
	require.NoError(t, err)
	assert.True(t, cached2)
	assert.Equal(t, body1, body2)
	assert.Equal(t, 1, calls)
}

func TestCache_CachedRequest_IgnoresCredentialHeaderRotation(t *testing.T) {
	store := newTestSQLiteStore(t)
	cache := New(store, time.Hour)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) ([]byte, int, error) {
		calls++
		return []byte("response"), 200, nil
	}

	_, _, _, err := cache.CachedRequest(ctx, "GET", "https://x", nil, map[string]string{"Authorization": "Bearer token-a"}, "", false, fetch)
	require.NoError(t, err)
	_, _, cached, err := cache.CachedRequest(ctx, "GET", "https://x", nil, map[string]string{"Authorization": "Bearer token-b"}, "", false, fetch)
	require.NoError(t, err)

	assert.True(t, cached)
	assert.Equal(t, 1, calls)
}

func TestRedisStore_FrontsDurableStoreAndBackfills(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	durable := newTestSQLiteStore(t)
	store := NewRedisStore(client, durable, time.Hour)
	ctx := context.Background()

	rec := enrichment.APICacheRecord{
		CacheKey:       "key-redis",
		Method:         "GET",
		URL:            "https://api.example.com",
		ResponseBody:   []byte("cached"),
		ResponseStatus: 200,
		CreatedAt:      time.Now(),
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Put(ctx, rec))

	// Present directly in Redis after Put.
	assert.True(t, mr.Exists(redisKey("key-redis")))

	got, ok, err := store.Get(ctx, "key-redis")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.ResponseBody, got.ResponseBody)
}

func TestRedisStore_BackfillsFromDurableOnMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	durable := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, durable.Put(ctx, enrichment.APICacheRecord{
		CacheKey:       "durable-only",
		Method:         "GET",
		URL:            "https://api.example.com",
		ResponseBody:   []byte("from durable"),
		ResponseStatus: 200,
		CreatedAt:      time.Now(),
		ExpiresAt:      time.Now().Add(time.Hour),
	}))

	store := NewRedisStore(client, durable, time.Hour)
	got, ok, err := store.Get(ctx, "durable-only")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("from durable"), got.ResponseBody)
	assert.True(t, mr.Exists(redisKey("durable-only")))
}
