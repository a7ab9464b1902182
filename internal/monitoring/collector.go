package monitoring

import (
	"context"
	"time"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/resilience"
)

// MetricsSnapshot holds a point-in-time view of system health: the
// observability surface the engine actually exposes (cache hit rates,
// in-flight batch depth, running LLM spend, and per-service circuit
// breaker state), not a historical query over stored runs.
type MetricsSnapshot struct {
	APICacheHits   int64   `json:"api_cache_hits"`
	APICacheMisses int64   `json:"api_cache_misses"`
	APICacheHitRate float64 `json:"api_cache_hit_rate"`

	LLMCacheHits    int64   `json:"llm_cache_hits"`
	LLMCacheMisses  int64   `json:"llm_cache_misses"`
	LLMCacheHitRate float64 `json:"llm_cache_hit_rate"`

	BatchQueueDepth int `json:"batch_queue_depth"`

	LLMCostUSD float64 `json:"llm_cost_usd"`

	CircuitBreakers map[string]string `json:"circuit_breakers"`

	CollectedAt time.Time `json:"collected_at"`
}

// CacheStatter is satisfied by both apicache.Cache and llmcache.Cache.
type CacheStatter interface {
	Stats() enrichment.CacheStats
}

// QueueDepther reports the current count of in-flight batch work.
// *batch.Gauge satisfies this.
type QueueDepther interface {
	Value() int
}

// SpendTracker reports accumulated LLM spend. *cost.Tracker satisfies
// this.
type SpendTracker interface {
	Total() float64
}

// Collector gathers a MetricsSnapshot from whichever instrumentation
// points were wired in; every source is optional and is skipped (zero
// value) when nil, so a partially-wired process still produces a
// snapshot instead of erroring.
type Collector struct {
	apiCache CacheStatter
	llmCache CacheStatter
	breakers *resilience.ServiceBreakers
	queue    QueueDepther
	spend    SpendTracker
}

// NewCollector constructs a Collector. Any argument may be nil.
func NewCollector(apiCache, llmCache CacheStatter, breakers *resilience.ServiceBreakers, queue QueueDepther, spend SpendTracker) *Collector {
	return &Collector{apiCache: apiCache, llmCache: llmCache, breakers: breakers, queue: queue, spend: spend}
}

// Collect reads every wired source and assembles a snapshot. It never
// returns an error: every source here is an in-memory read, not an I/O
// call that can fail.
func (c *Collector) Collect(_ context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{CollectedAt: time.Now().UTC()}

	if c.apiCache != nil {
		stats := c.apiCache.Stats()
		snap.APICacheHits = stats.Hits
		snap.APICacheMisses = stats.Misses
		snap.APICacheHitRate = stats.HitRate()
	}

	if c.llmCache != nil {
		stats := c.llmCache.Stats()
		snap.LLMCacheHits = stats.Hits
		snap.LLMCacheMisses = stats.Misses
		snap.LLMCacheHitRate = stats.HitRate()
	}

	if c.queue != nil {
		snap.BatchQueueDepth = c.queue.Value()
	}

	if c.spend != nil {
		snap.LLMCostUSD = c.spend.Total()
	}

	if c.breakers != nil {
		states := c.breakers.States()
		snap.CircuitBreakers = make(map[string]string, len(states))
		for service, state := range states {
			snap.CircuitBreakers[service] = state.String()
		}
	}

	return snap, nil
}
