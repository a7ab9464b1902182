package monitoring

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/resilience"
)

func TestPrometheusExporter_RefreshPopulatesGauges(t *testing.T) {
	apiCache := stubCacheStatter{stats: enrichment.CacheStats{Hits: 3, Misses: 1}}
	breakers := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	breakers.Get("jina")

	collector := NewCollector(apiCache, nil, breakers, stubQueueDepther{depth: 4}, stubSpendTracker{total: 2.5})
	exporter := NewPrometheusExporter(collector)

	require.NoError(t, exporter.Refresh(context.Background()))
	assert.Equal(t, 0.75, testutil.ToFloat64(exporter.apiCacheHitRate))
	assert.Equal(t, 4.0, testutil.ToFloat64(exporter.batchQueueDepth))
	assert.Equal(t, 2.5, testutil.ToFloat64(exporter.llmCostUSD))
}

func TestPrometheusExporter_HandlerServesMetrics(t *testing.T) {
	collector := NewCollector(nil, nil, nil, nil, nil)
	exporter := NewPrometheusExporter(collector)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "enrichment_engine_batch_queue_depth")
}
