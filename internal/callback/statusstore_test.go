package callback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

func newTestStatusStore(t *testing.T) *SQLiteStatusStore {
	t.Helper()
	store, err := NewSQLiteStatusStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStatusStore_GetMissReturnsNotFound(t *testing.T) {
	store := newTestStatusStore(t)
	_, err := store.Get(context.Background(), "acct_1", enrichment.TypeCompanyInfo)
	assert.True(t, enrichment.IsNotFound(err))
}

func TestSQLiteStatusStore_UpdateThenGetRoundTrip(t *testing.T) {
	store := newTestStatusStore(t)
	ctx := context.Background()

	status := enrichment.AccountEnrichmentStatus{
		Account:           "acct_2",
		EnrichmentType:    enrichment.TypeGenerateLeads,
		Status:            string(enrichment.StatusProcessing),
		Metadata:          map[string]any{"processed_pages": []any{float64(1), float64(2)}},
		FailureCount:      1,
		LastAttemptedRun:  time.Now().UTC().Truncate(time.Second),
		CompletionPercent: 40,
	}
	require.NoError(t, store.Update(ctx, status))

	got, err := store.Get(ctx, "acct_2", enrichment.TypeGenerateLeads)
	require.NoError(t, err)
	assert.Equal(t, status.Status, got.Status)
	assert.Equal(t, 1, got.FailureCount)
	assert.True(t, got.ProcessedPages()[1])
	assert.True(t, got.ProcessedPages()[2])

	status.Status = string(enrichment.StatusCompleted)
	status.FailureCount = 0
	require.NoError(t, store.Update(ctx, status))

	updated, err := store.Get(ctx, "acct_2", enrichment.TypeGenerateLeads)
	require.NoError(t, err)
	assert.Equal(t, string(enrichment.StatusCompleted), updated.Status)
}
