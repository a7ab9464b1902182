package callback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

func TestEvaluateSkipPolicy_PaginatedSkipsProcessedPage(t *testing.T) {
	status := &enrichment.AccountEnrichmentStatus{
		Status:   string(enrichment.StatusProcessing),
		Metadata: map[string]any{"processed_pages": []any{float64(1), float64(2)}},
	}
	event := enrichment.CallbackEvent{Pagination: &enrichment.Pagination{Page: 2, TotalPages: 5}}

	d := evaluateSkipPolicy(status, event)
	assert.True(t, d.skip)
}

func TestEvaluateSkipPolicy_PaginatedAcceptsNewPage(t *testing.T) {
	status := &enrichment.AccountEnrichmentStatus{
		Status:   string(enrichment.StatusProcessing),
		Metadata: map[string]any{"processed_pages": []any{float64(1)}},
	}
	event := enrichment.CallbackEvent{Pagination: &enrichment.Pagination{Page: 2, TotalPages: 5}}

	d := evaluateSkipPolicy(status, event)
	assert.False(t, d.skip)
}

func TestEvaluateSkipPolicy_UnpaginatedSkipsWhenAlreadyCompleted(t *testing.T) {
	status := &enrichment.AccountEnrichmentStatus{Status: string(enrichment.StatusCompleted)}
	event := enrichment.CallbackEvent{Status: enrichment.StatusProcessing}

	d := evaluateSkipPolicy(status, event)
	assert.True(t, d.skip)
}

func TestEvaluateSkipPolicy_FailedOnlyAcceptsCompleted(t *testing.T) {
	status := &enrichment.AccountEnrichmentStatus{Status: string(enrichment.StatusFailed)}

	retried := evaluateSkipPolicy(status, enrichment.CallbackEvent{Status: enrichment.StatusProcessing})
	assert.True(t, retried.skip)

	recovered := evaluateSkipPolicy(status, enrichment.CallbackEvent{Status: enrichment.StatusCompleted})
	assert.False(t, recovered.skip)
}

func TestEffectiveStatus_PaginatedInProgressUntilFinalPage(t *testing.T) {
	mid := enrichment.CallbackEvent{Status: enrichment.StatusCompleted, Pagination: &enrichment.Pagination{Page: 2, TotalPages: 5}}
	assert.Equal(t, enrichment.StatusInProgress, effectiveStatus(mid))

	last := enrichment.CallbackEvent{Status: enrichment.StatusCompleted, Pagination: &enrichment.Pagination{Page: 5, TotalPages: 5}}
	assert.Equal(t, enrichment.StatusCompleted, effectiveStatus(last))
}

func TestMergeStatus_IncrementsFailureCountAndBumpsAttempted(t *testing.T) {
	prev := &enrichment.AccountEnrichmentStatus{Account: "acct_1", FailureCount: 2}
	event := enrichment.CallbackEvent{Status: enrichment.StatusFailed, ErrorDetails: &enrichment.ErrorDetails{Message: "boom"}}

	next := mergeStatus(prev, "acct_1", event)
	assert.Equal(t, 3, next.FailureCount)
	assert.False(t, next.LastAttemptedRun.IsZero())
	assert.True(t, next.LastSuccessfulRun.IsZero())
}

func TestMergeStatus_TracksProcessedPages(t *testing.T) {
	prev := &enrichment.AccountEnrichmentStatus{
		Account:  "acct_2",
		Metadata: map[string]any{"processed_pages": []any{float64(1)}},
	}
	event := enrichment.CallbackEvent{Status: enrichment.StatusProcessing, Pagination: &enrichment.Pagination{Page: 2, TotalPages: 3}}

	next := mergeStatus(prev, "acct_2", event)
	pages := next.ProcessedPages()
	assert.True(t, pages[1])
	assert.True(t, pages[2])
}
