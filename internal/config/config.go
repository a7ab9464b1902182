// Package config loads and validates the engine's configuration, the way
// the teacher's internal/config does: viper over a YAML file plus
// environment overrides, with per-mode required-field checks.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	ResultStore ResultStoreConfig `yaml:"result_store" mapstructure:"result_store"`
	Jina        JinaConfig        `yaml:"jina" mapstructure:"jina"`
	Firecrawl   FirecrawlConfig   `yaml:"firecrawl" mapstructure:"firecrawl"`
	Perplexity  PerplexityConfig  `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	BuiltWith   BuiltWithConfig   `yaml:"builtwith" mapstructure:"builtwith"`
	Proxycurl   ProxycurlConfig   `yaml:"proxycurl" mapstructure:"proxycurl"`
	Apify       ApifyConfig       `yaml:"apify" mapstructure:"apify"`
	Pricing     PricingConfig     `yaml:"pricing" mapstructure:"pricing"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Resilience  ResilienceConfig  `yaml:"resilience" mapstructure:"resilience"`
	Callback    CallbackConfig    `yaml:"callback" mapstructure:"callback"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// CacheConfig configures the apicache/llmcache backends (spec §4.2,
// §4.3). Driver selects the durable backend ("" or sqlite, or postgres);
// a non-empty RedisURL puts a Redis layer in front of it whatever the
// driver.
type CacheConfig struct {
	Driver         string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL    string `yaml:"database_url" mapstructure:"database_url"`
	RedisURL       string `yaml:"redis_url" mapstructure:"redis_url"`
	APICacheTTLHours int  `yaml:"api_cache_ttl_hours" mapstructure:"api_cache_ttl_hours"`
	LLMCacheTTLHours int  `yaml:"llm_cache_ttl_hours" mapstructure:"llm_cache_ttl_hours"`
}

// ResultStoreConfig configures internal/resultstore's batching thresholds
// (spec §4.8). The keys are named after TASK_RESULT_BATCH_SIZE,
// TASK_RESULT_BATCH_THRESHOLD, TASK_RESULT_MAX_CONCURRENT and
// ENABLE_RESULT_BATCHING; through the ENGINE_ env prefix they are read
// from ENGINE_RESULT_STORE_<KEY> (e.g. ENGINE_RESULT_STORE_TASK_RESULT_BATCH_SIZE).
type ResultStoreConfig struct {
	Driver               string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL          string `yaml:"database_url" mapstructure:"database_url"`
	Enabled              bool   `yaml:"enable_result_batching" mapstructure:"enable_result_batching"`
	BatchSize            int    `yaml:"task_result_batch_size" mapstructure:"task_result_batch_size"`
	BatchThreshold       int    `yaml:"task_result_batch_threshold" mapstructure:"task_result_batch_threshold"`
	MaxConcurrentInserts int    `yaml:"task_result_max_concurrent" mapstructure:"task_result_max_concurrent"`
}

// JinaConfig holds Jina AI Reader settings (spec §6 `JINA_API_TOKEN`).
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl API settings, used as
// enrichtask.FallbackProfileFetcher's secondary source.
type FirecrawlConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	MaxPages int    `yaml:"max_pages" mapstructure:"max_pages"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key                 string `yaml:"key" mapstructure:"key"`
	HaikuModel          string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel         string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	OpusModel           string `yaml:"opus_model" mapstructure:"opus_model"`
	MaxBatchSize        int    `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	NoBatch             bool   `yaml:"no_batch" mapstructure:"no_batch"`
	SmallBatchThreshold int    `yaml:"small_batch_threshold" mapstructure:"small_batch_threshold"`
}

// BuiltWithConfig holds the technographic-lookup API settings (spec §6
// `BUILTWITH_API_KEY`).
type BuiltWithConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ProxycurlConfig holds the LinkedIn-discovery API settings (spec §6
// `PROXYCURL_API_KEY`, `RAPID_API_KEY`). Setting RapidAPIKey switches the
// client onto the RapidAPI front door for the same lookup rather than a
// distinct API.
type ProxycurlConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	RapidAPIKey string `yaml:"rapid_api_key" mapstructure:"rapid_api_key"`
}

// ApifyConfig holds the LinkedIn-activity-scrape API settings (spec §6
// `APIFY_API_KEY`).
type ApifyConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	ActorID string `yaml:"actor_id" mapstructure:"actor_id"`
}

// PricingConfig holds per-provider pricing rates; mirrored by
// internal/cost.PricingConfig (see that package's comment) to avoid an
// import cycle between config and cost.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaPricing             `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Firecrawl  FirecrawlPricing        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// JinaPricing holds Jina Reader pricing.
type JinaPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// FirecrawlPricing holds Firecrawl pricing.
type FirecrawlPricing struct {
	PlanMonthly     float64 `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	CreditsIncluded float64 `yaml:"credits_included" mapstructure:"credits_included"`
}

// BatchConfig configures internal/batch.Processor defaults (spec §4.4).
type BatchConfig struct {
	Size               int `yaml:"size" mapstructure:"size"`
	ConcurrentRequests int `yaml:"concurrent_requests" mapstructure:"concurrent_requests"`
}

// ResilienceConfig configures internal/resilience.CircuitBreaker defaults.
type ResilienceConfig struct {
	FailureThreshold  int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs  int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	HalfOpenMaxProbes int `yaml:"half_open_max_probes" mapstructure:"half_open_max_probes"`
}

// CallbackConfig configures the inbound callback HTTP server (spec §6):
// the HMAC shared secret backing callback.HMACVerifier.
type CallbackConfig struct {
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures internal/monitoring's Alerter/Checker.
type MonitoringConfig struct {
	Enabled                bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	CacheHitRateFloor      float64 `yaml:"cache_hit_rate_floor" mapstructure:"cache_hit_rate_floor"`
	MinCacheSamples        int64   `yaml:"min_cache_samples" mapstructure:"min_cache_samples"`
	CostThresholdUSD       float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	BatchQueueDepthCeiling int     `yaml:"batch_queue_depth_ceiling" mapstructure:"batch_queue_depth_ceiling"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks required configuration fields based on run mode.
// Supported modes: "serve" (the callback HTTP server and background
// enrichment workers), "run" (one synchronous task invocation), "runs"
// (inspect/replay stored results), and "migrate" (apply store schemas
// only).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Callback.WebhookSecret == "" {
			errs = append(errs, "callback.webhook_secret is required")
		}
		if c.Anthropic.Key == "" && c.Perplexity.Key == "" {
			errs = append(errs, "at least one of anthropic.key or perplexity.key is required")
		}
	case "run":
		if c.Anthropic.Key == "" && c.Perplexity.Key == "" {
			errs = append(errs, "at least one of anthropic.key or perplexity.key is required")
		}
	case "runs":
		if c.ResultStore.DatabaseURL == "" {
			errs = append(errs, "result_store.database_url is required")
		}
	case "migrate":
		if c.Cache.DatabaseURL == "" && c.ResultStore.DatabaseURL == "" {
			errs = append(errs, "cache.database_url or result_store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.Size < 1 {
		errs = append(errs, "batch.size must be >= 1")
	}
	if c.Batch.ConcurrentRequests < 1 {
		errs = append(errs, "batch.concurrent_requests must be >= 1")
	}
	if c.Monitoring.CacheHitRateFloor < 0 || c.Monitoring.CacheHitRateFloor > 1 {
		errs = append(errs, "monitoring.cache_hit_rate_floor must be between 0.0 and 1.0")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: validation failed: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.api_cache_ttl_hours", 24)
	v.SetDefault("cache.llm_cache_ttl_hours", 168)
	v.SetDefault("result_store.driver", "sqlite")
	v.SetDefault("result_store.enable_result_batching", true)
	v.SetDefault("result_store.task_result_batch_size", 100)
	v.SetDefault("result_store.task_result_batch_threshold", 50)
	v.SetDefault("result_store.task_result_max_concurrent", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.size", 10)
	v.SetDefault("batch.concurrent_requests", 5)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("resilience.half_open_max_probes", 1)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("firecrawl.max_pages", 50)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.opus_model", "claude-opus-4-6")
	v.SetDefault("anthropic.max_batch_size", 100)
	v.SetDefault("anthropic.small_batch_threshold", 3)
	v.SetDefault("builtwith.base_url", "https://api.builtwith.com/v21/api.json")
	v.SetDefault("proxycurl.base_url", "https://nubela.co/proxycurl/api")
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.actor_id", "linkedin-activity-scraper")
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.cache_hit_rate_floor", 0.3)
	v.SetDefault("monitoring.min_cache_samples", 50)
	v.SetDefault("pricing.jina.per_mtok", 0.02)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.firecrawl.plan_monthly", 19.00)
	v.SetDefault("pricing.firecrawl.credits_included", 3000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
