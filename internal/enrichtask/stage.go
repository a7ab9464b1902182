package enrichtask

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// stageTracker emits the processing callback at each stage boundary of a
// single-entity task, clamping completion_percentage to be monotonically
// non-decreasing regardless of the order stages happen to finish in.
type stageTracker struct {
	emitter        CallbackEmitter
	jobID          string
	accountID      string
	leadID         string
	tenantID       string
	enrichmentType enrichment.Type
	log            *zap.Logger

	lastPercent float64
}

func newStageTracker(emitter CallbackEmitter, enrichmentType enrichment.Type, jobID, accountID, leadID string, log *zap.Logger) *stageTracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &stageTracker{
		emitter:        emitter,
		jobID:          jobID,
		accountID:      accountID,
		leadID:         leadID,
		enrichmentType: enrichmentType,
		log:            log,
	}
}

// advance emits a "processing" callback for the named stage at percent,
// clamped so it never regresses below the previous stage's percentage.
func (t *stageTracker) advance(ctx context.Context, stage string, percent float64) {
	if percent < t.lastPercent {
		percent = t.lastPercent
	}
	t.lastPercent = percent

	if t.emitter == nil {
		return
	}
	event := enrichment.CallbackEvent{
		JobID:                t.jobID,
		AccountID:            t.accountID,
		LeadID:               t.leadID,
		EnrichmentType:       t.enrichmentType,
		Status:               enrichment.StatusProcessing,
		Source:               stage,
		CompletionPercentage: percent,
	}
	if err := t.emitter.Emit(ctx, event); err != nil {
		t.log.Warn("enrichtask: stage callback emit failed",
			zap.String("stage", stage), zap.Error(err))
	}
}
