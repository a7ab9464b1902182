package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-engine/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		CacheHitRateFloor: 0.5,
		MinCacheSamples:   10,
		CostThresholdUSD:  500.0,
	})

	snap := &MetricsSnapshot{
		APICacheHits:    90,
		APICacheMisses:  10,
		APICacheHitRate: 0.9,
		LLMCostUSD:      100.0,
		CircuitBreakers: map[string]string{"jina": "closed"},
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_CacheHitRateLow(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		CacheHitRateFloor: 0.5,
		MinCacheSamples:   10,
	})

	snap := &MetricsSnapshot{
		APICacheHits:    2,
		APICacheMisses:  18,
		APICacheHitRate: 0.1,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCacheHitRateLow, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "10.0%")
}

func TestAlerter_Evaluate_BelowMinSamplesSkipsAlert(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		CacheHitRateFloor: 0.5,
		MinCacheSamples:   50,
	})

	snap := &MetricsSnapshot{APICacheHits: 0, APICacheMisses: 3, APICacheHitRate: 0}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_CircuitBreakerOpen(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	snap := &MetricsSnapshot{
		CircuitBreakers: map[string]string{"jina": "closed", "proxycurl": "open"},
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCircuitBreakerOpen, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "proxycurl")
}

func TestAlerter_Evaluate_CostOverrun(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{CostThresholdUSD: 100.0})

	snap := &MetricsSnapshot{LLMCostUSD: 250.0}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCostOverrun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "$250.00")
}

func TestAlerter_Evaluate_BatchQueueBacklog(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{BatchQueueDepthCeiling: 100})

	snap := &MetricsSnapshot{BatchQueueDepth: 150}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertBatchQueueBacklog, alerts[0].Type)
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		CacheHitRateFloor: 0.5,
		MinCacheSamples:   10,
		CostThresholdUSD:  100.0,
	})

	snap := &MetricsSnapshot{
		APICacheHits:    1,
		APICacheMisses:  19,
		APICacheHitRate: 0.05,
		LLMCostUSD:      300.0,
		CircuitBreakers: map[string]string{"proxycurl": "open"},
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, al := range alerts {
		types[al.Type] = true
	}
	assert.True(t, types[AlertCacheHitRateLow])
	assert.True(t, types[AlertCircuitBreakerOpen])
	assert.True(t, types[AlertCostOverrun])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertCacheHitRateLow, Severity: "medium", Message: "test alert 1"},
		{Type: AlertCostOverrun, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: ""})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertCostOverrun, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{{Type: AlertCostOverrun, Message: "test"}}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
}

func TestAlerter_Evaluate_ZeroCostThreshold(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{CostThresholdUSD: 0})

	snap := &MetricsSnapshot{LLMCostUSD: 999.0}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}
