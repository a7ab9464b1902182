package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/config"
	"github.com/sells-group/enrichment-engine/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCacheHitRateLow   AlertType = "cache_hit_rate_low"
	AlertCircuitBreakerOpen AlertType = "circuit_breaker_open"
	AlertCostOverrun       AlertType = "cost_overrun"
	AlertBatchQueueBacklog AlertType = "batch_queue_backlog"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	totalAPI := snap.APICacheHits + snap.APICacheMisses
	if a.cfg.CacheHitRateFloor > 0 && totalAPI >= a.cfg.MinCacheSamples && snap.APICacheHitRate < a.cfg.CacheHitRateFloor {
		alerts = append(alerts, Alert{
			Type:     AlertCacheHitRateLow,
			Severity: "medium",
			Message: fmt.Sprintf(
				"API cache hit rate %.1f%% is below the %.1f%% floor (%d hits / %d requests)",
				snap.APICacheHitRate*100, a.cfg.CacheHitRateFloor*100, snap.APICacheHits, totalAPI,
			),
			Details: map[string]any{
				"hit_rate": snap.APICacheHitRate,
				"floor":    a.cfg.CacheHitRateFloor,
				"hits":     snap.APICacheHits,
				"misses":   snap.APICacheMisses,
			},
			Timestamp: now,
		})
	}

	for service, state := range snap.CircuitBreakers {
		if state != resilience.CircuitOpen.String() {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertCircuitBreakerOpen,
			Severity: "high",
			Message:  fmt.Sprintf("circuit breaker for %s is open", service),
			Details:  map[string]any{"service": service, "state": state},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.LLMCostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"LLM spend $%.2f exceeds threshold $%.2f",
				snap.LLMCostUSD, a.cfg.CostThresholdUSD,
			),
			Details: map[string]any{
				"cost_usd":      snap.LLMCostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
			},
			Timestamp: now,
		})
	}

	if a.cfg.BatchQueueDepthCeiling > 0 && snap.BatchQueueDepth > a.cfg.BatchQueueDepthCeiling {
		alerts = append(alerts, Alert{
			Type:     AlertBatchQueueBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"batch queue depth %d exceeds ceiling %d",
				snap.BatchQueueDepth, a.cfg.BatchQueueDepthCeiling,
			),
			Details: map[string]any{
				"depth":   snap.BatchQueueDepth,
				"ceiling": a.cfg.BatchQueueDepthCeiling,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
