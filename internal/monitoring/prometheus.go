package monitoring

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// circuitStateValue maps a breaker's textual state to the gauge value
// Prometheus convention expects for a finite-state metric: 0 closed, 0.5
// half-open, 1 open.
func circuitStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 0.5
	default:
		return 0
	}
}

// PrometheusExporter mirrors a Collector's snapshots onto a dedicated
// prometheus.Registry, giving the callback HTTP surface a /metrics
// endpoint alongside the JSON one Collector.Collect already serves.
// Registered on its own registry (not the default, global one) so tests
// can construct independent exporters without colliding.
type PrometheusExporter struct {
	collector *Collector
	registry  *prometheus.Registry

	apiCacheHitRate prometheus.Gauge
	llmCacheHitRate prometheus.Gauge
	batchQueueDepth prometheus.Gauge
	llmCostUSD      prometheus.Gauge
	circuitState    *prometheus.GaugeVec
}

// NewPrometheusExporter registers the engine's gauges against a fresh
// registry and wraps collector as their data source.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	reg := prometheus.NewRegistry()
	e := &PrometheusExporter{
		collector: collector,
		registry:  reg,
		apiCacheHitRate: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "enrichment_engine",
			Subsystem: "cache",
			Name:      "api_hit_rate",
			Help:      "Hit rate of the external-API response cache, 0 to 1.",
		}),
		llmCacheHitRate: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "enrichment_engine",
			Subsystem: "cache",
			Name:      "llm_hit_rate",
			Help:      "Hit rate of the LLM response cache, 0 to 1.",
		}),
		batchQueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "enrichment_engine",
			Subsystem: "batch",
			Name:      "queue_depth",
			Help:      "Number of batch jobs currently in flight.",
		}),
		llmCostUSD: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "enrichment_engine",
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Cumulative estimated LLM spend in USD since process start.",
		}),
		circuitState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "enrichment_engine",
			Subsystem: "resilience",
			Name:      "circuit_breaker_state",
			Help:      "Per-service circuit breaker state: 0 closed, 0.5 half-open, 1 open.",
		}, []string{"service"}),
	}
	return e
}

// Refresh pulls a fresh snapshot from the Collector and updates every
// gauge. Called on each /metrics scrape rather than on a timer, so the
// exported values are never staler than the scrape interval.
func (e *PrometheusExporter) Refresh(ctx context.Context) error {
	snap, err := e.collector.Collect(ctx)
	if err != nil {
		return err
	}

	e.apiCacheHitRate.Set(snap.APICacheHitRate)
	e.llmCacheHitRate.Set(snap.LLMCacheHitRate)
	e.batchQueueDepth.Set(float64(snap.BatchQueueDepth))
	e.llmCostUSD.Set(snap.LLMCostUSD)

	e.circuitState.Reset()
	for service, state := range snap.CircuitBreakers {
		e.circuitState.WithLabelValues(service).Set(circuitStateValue(state))
	}

	return nil
}

// Handler returns the scrape-time http.Handler: a Refresh against the
// request's context followed by delegating to promhttp against this
// exporter's own registry.
func (e *PrometheusExporter) Handler() http.Handler {
	next := promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := e.Refresh(r.Context()); err != nil {
			http.Error(w, "metrics collection failed", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}
