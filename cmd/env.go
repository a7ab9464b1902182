package main

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/apicache"
	"github.com/sells-group/enrichment-engine/internal/callback"
	"github.com/sells-group/enrichment-engine/internal/config"
	"github.com/sells-group/enrichment-engine/internal/cost"
	"github.com/sells-group/enrichment-engine/internal/customcolumn"
	"github.com/sells-group/enrichment-engine/internal/enrichtask"
	"github.com/sells-group/enrichment-engine/internal/jsonrepair"
	"github.com/sells-group/enrichment-engine/internal/llm"
	"github.com/sells-group/enrichment-engine/internal/llmcache"
	"github.com/sells-group/enrichment-engine/internal/monitoring"
	"github.com/sells-group/enrichment-engine/internal/resilience"
	"github.com/sells-group/enrichment-engine/internal/resultstore"
	anthropicpkg "github.com/sells-group/enrichment-engine/pkg/anthropic"
	"github.com/sells-group/enrichment-engine/pkg/apify"
	"github.com/sells-group/enrichment-engine/pkg/builtwith"
	"github.com/sells-group/enrichment-engine/pkg/firecrawl"
	"github.com/sells-group/enrichment-engine/pkg/jina"
	"github.com/sells-group/enrichment-engine/pkg/perplexity"
	"github.com/sells-group/enrichment-engine/pkg/proxycurl"
)

// engineEnv holds every initialized client, cache, and task runner the
// serve/run/migrate commands need. Built once at process start and
// closed on shutdown.
type engineEnv struct {
	APICache    *apicache.Cache
	LLMCache    *llmcache.Cache
	ResultStore *resultstore.Store
	Breakers    *resilience.ServiceBreakers
	CostTracker *cost.Tracker
	LLMClient   *llm.Client
	JSONPool    *jsonrepair.Pool

	AccountEnhancer  *enrichtask.AccountEnhancer
	ActivityEnricher *enrichtask.ActivityEnricher
	ColumnRunner     *customcolumn.Runner
	ActivityFetcher  apify.ActivityFetcher

	CallbackHandler *callback.Handler

	Collector        *monitoring.Collector
	PrometheusExport *monitoring.PrometheusExporter

	closers []func() error
}

// Close releases every resource buildEnv opened, logging (rather than
// failing) individual close errors so shutdown always proceeds.
func (e *engineEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("error closing resource during shutdown", zap.Error(err))
		}
	}
}

// buildAPICacheStore opens the configured apicache backend, optionally
// fronted by Redis.
func buildAPICacheStore(ctx context.Context, c config.CacheConfig) (apicache.Store, error) {
	var store apicache.Store
	switch strings.ToLower(c.Driver) {
	case "", "sqlite":
		s, err := apicache.NewSQLite(c.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "apicache: open sqlite")
		}
		store = s
	case "postgres":
		s, err := apicache.NewPostgres(ctx, c.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "apicache: open postgres")
		}
		store = s
	default:
		return nil, eris.Errorf("apicache: unknown driver %q", c.Driver)
	}

	if c.RedisURL != "" {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, eris.Wrap(err, "apicache: parse redis url")
		}
		rdb := redis.NewClient(opts)
		store = apicache.NewRedisStore(rdb, store, time.Duration(c.APICacheTTLHours)*time.Hour)
	}

	return store, nil
}

// buildLLMCacheStore mirrors buildAPICacheStore for the LLM cache (no
// Postgres backend exists for this store yet — see DESIGN.md).
func buildLLMCacheStore(c config.CacheConfig) (llmcache.Store, error) {
	var store llmcache.Store
	switch strings.ToLower(c.Driver) {
	case "", "sqlite", "postgres":
		s, err := llmcache.NewSQLite(c.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "llmcache: open sqlite")
		}
		store = s
	default:
		return nil, eris.Errorf("llmcache: unknown driver %q", c.Driver)
	}

	if c.RedisURL != "" {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, eris.Wrap(err, "llmcache: parse redis url")
		}
		rdb := redis.NewClient(opts)
		store = llmcache.NewRedisStore(rdb, store, time.Duration(c.LLMCacheTTLHours)*time.Hour)
	}

	return store, nil
}

// buildEnv wires every internal/* component into the concrete adapters
// this deployment uses, following the teacher's initPipeline: open
// stores, construct API clients, build task runners, return one struct
// the command layer drives.
func buildEnv(ctx context.Context, cfg *config.Config) (*engineEnv, error) {
	env := &engineEnv{}

	apiStore, err := buildAPICacheStore(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, apiStore.Close)
	env.APICache = apicache.New(apiStore, time.Duration(cfg.Cache.APICacheTTLHours)*time.Hour)

	llmStore, err := buildLLMCacheStore(cfg.Cache)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, llmStore.Close)
	env.LLMCache = llmcache.New(llmStore, time.Duration(cfg.Cache.LLMCacheTTLHours)*time.Hour)

	resultBackend, err := resultstore.NewSQLiteBackend(cfg.ResultStore.DatabaseURL)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "resultstore: open")
	}
	env.closers = append(env.closers, resultBackend.Close)
	env.ResultStore = resultstore.New(resultBackend, resultstore.Config{
		Enabled:              cfg.ResultStore.Enabled,
		BatchSize:            cfg.ResultStore.BatchSize,
		BatchThreshold:       cfg.ResultStore.BatchThreshold,
		MaxConcurrentInserts: cfg.ResultStore.MaxConcurrentInserts,
	})

	env.Breakers = resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold:  cfg.Resilience.FailureThreshold,
		ResetTimeout:      time.Duration(cfg.Resilience.ResetTimeoutSecs) * time.Second,
		HalfOpenMaxProbes: cfg.Resilience.HalfOpenMaxProbes,
	})
	env.CostTracker = &cost.Tracker{}

	statusStore, err := callback.NewSQLiteStatusStore(cfg.Cache.DatabaseURL)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "callback: open status store")
	}
	env.closers = append(env.closers, statusStore.Close)

	env.JSONPool = jsonrepair.New(0)
	env.closers = append(env.closers, func() error { env.JSONPool.Close(); return nil })

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	var perplexityClient perplexity.Client
	if cfg.Perplexity.Key != "" {
		perplexityClient = perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model))
	}

	primary := llm.NewAnthropicProvider(anthropicClient, cfg.Anthropic.SonnetModel, 4096)
	var fallback llm.Provider
	fallbackModel := ""
	if perplexityClient != nil {
		fallback = llm.NewPerplexityProvider(perplexityClient, cfg.Perplexity.Model)
		fallbackModel = cfg.Perplexity.Model
	}

	env.LLMClient = llm.NewClient(llm.Config{
		Primary:       primary,
		Fallback:      fallback,
		FallbackModel: fallbackModel,
		Cache:         env.LLMCache,
		CacheTTL:      time.Duration(cfg.Cache.LLMCacheTTLHours) * time.Hour,
		Logger:        zap.L(),
		JSONPool:      env.JSONPool,
	})

	jinaClient := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL), jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	firecrawlClient := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	builtwithClient := builtwith.NewClient(cfg.BuiltWith.Key, builtwith.WithBaseURL(cfg.BuiltWith.BaseURL))

	proxycurlOpts := []proxycurl.Option{proxycurl.WithBaseURL(cfg.Proxycurl.BaseURL)}
	if cfg.Proxycurl.RapidAPIKey != "" {
		proxycurlOpts = append(proxycurlOpts, proxycurl.WithRapidAPIKey(cfg.Proxycurl.RapidAPIKey))
	}
	proxycurlClient := proxycurl.NewClient(cfg.Proxycurl.Key, proxycurlOpts...)

	apifyClient := apify.NewClient(cfg.Apify.Key, apify.WithBaseURL(cfg.Apify.BaseURL), apify.WithActorID(cfg.Apify.ActorID))
	env.ActivityFetcher = apify.ActivityFetcher{Client: apifyClient}

	// Leads/lead-gen-summary/account-field/lead-research/custom-column
	// dispatch targets are left nil: those own the externally-owned
	// relational data model (accounts/leads) this engine does not
	// persist (out of scope per spec.md's Non-goals). The Handler's own
	// contract is that any dispatch target may be nil; this callback's
	// job here is status-gating and result-store writes, not CRM
	// mutation.
	callbackHandler := callback.New(statusStore, env.ResultStore, nil, nil, nil, nil, nil)
	env.CallbackHandler = callbackHandler
	emitter := handlerEmitter{handler: callbackHandler}

	env.AccountEnhancer = &enrichtask.AccountEnhancer{
		Profiles: enrichtask.FallbackProfileFetcher{
			Primary:   jina.ProfileReader{Client: jinaClient},
			Secondary: firecrawl.ProfileScraper{Client: firecrawlClient},
			Log:       zap.L(),
		},
		Tech:       builtwith.TechnographicAdapter{Client: builtwithClient},
		TechParser: enrichtask.RegexTechParser{},
		LinkedIn:   proxycurl.LinkedInDiscoverer{Client: proxycurlClient},
		LLM:        env.LLMClient,
		Store:      env.ResultStore,
		Emitter:    emitter,
		Log:        zap.L(),
	}

	env.ActivityEnricher = &enrichtask.ActivityEnricher{
		Parser:  enrichtask.RegexActivityParser{},
		LLM:     env.LLMClient,
		Store:   env.ResultStore,
		Emitter: emitter,
		Log:     zap.L(),
	}

	allowList := customcolumn.ModelAllowList{
		cfg.Anthropic.HaikuModel:  "anthropic",
		cfg.Anthropic.SonnetModel: "anthropic",
		cfg.Anthropic.OpusModel:   "anthropic",
		cfg.Perplexity.Model:      "perplexity",
	}
	recentActivity := apify.RecentActivityFetcher{Fetcher: env.ActivityFetcher, Parser: enrichtask.RegexActivityParser{}}
	env.ColumnRunner = customcolumn.NewRunner(env.LLMClient, allowList, recentActivity, zap.L())

	env.Collector = monitoring.NewCollector(env.APICache, env.LLMCache, env.Breakers, nil, env.CostTracker)
	env.PrometheusExport = monitoring.NewPrometheusExporter(env.Collector)

	return env, nil
}

// validateURL is used by cmd/run.go to sanity-check a website URL
// before handing it to the enhancement pipeline.
func validateURL(raw string) error {
	if raw == "" {
		return eris.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return eris.Errorf("invalid url %q", raw)
	}
	return nil
}
