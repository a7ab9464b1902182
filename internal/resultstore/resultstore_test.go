package resultstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

func newTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	backend, err := NewSQLiteBackend(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func leadsArray(n int) json.RawMessage {
	items := make([]map[string]int, n)
	for i := range items {
		items[i] = map[string]int{"idx": i}
	}
	b, _ := json.Marshal(items)
	return b
}

func TestStore_SingleRow_BelowThreshold(t *testing.T) {
	backend := newTestBackend(t)
	store := New(backend, DefaultConfig())
	ctx := context.Background()

	processed, _ := json.Marshal(map[string]json.RawMessage{"structured_leads": leadsArray(10)})
	event := enrichment.CallbackEvent{Status: enrichment.StatusCompleted, ProcessedData: processed}

	require.NoError(t, store.Store(ctx, "acct_1", "", "job_1", "generate_leads", event))

	got, err := store.Get(ctx, "acct_1", "", "generate_leads")
	require.NoError(t, err)

	var data map[string][]map[string]int
	require.NoError(t, json.Unmarshal(got.ProcessedData, &data))
	assert.Len(t, data["structured_leads"], 10)
}

func TestStore_BatchedRoundTrip_PreservesOrderAndLength(t *testing.T) {
	backend := newTestBackend(t)
	cfg := DefaultConfig()
	cfg.InsertDelay = 0
	store := New(backend, cfg)
	ctx := context.Background()

	processed, _ := json.Marshal(map[string]json.RawMessage{"structured_leads": leadsArray(250)})
	event := enrichment.CallbackEvent{Status: enrichment.StatusCompleted, ProcessedData: processed}

	require.NoError(t, store.Store(ctx, "acct_2", "", "job_2", "generate_leads", event))

	got, err := store.Get(ctx, "acct_2", "", "generate_leads")
	require.NoError(t, err)

	var data map[string][]map[string]int
	require.NoError(t, json.Unmarshal(got.ProcessedData, &data))
	require.Len(t, data["structured_leads"], 250)
	for i, item := range data["structured_leads"] {
		assert.Equal(t, i, item["idx"])
	}
}

func TestStore_IgnoresNonTerminalPayloads(t *testing.T) {
	backend := newTestBackend(t)
	store := New(backend, DefaultConfig())
	ctx := context.Background()

	event := enrichment.CallbackEvent{Status: enrichment.StatusProcessing}
	require.NoError(t, store.Store(ctx, "acct_3", "", "job_3", "generate_leads", event))

	_, err := store.Get(ctx, "acct_3", "", "generate_leads")
	assert.True(t, enrichment.IsNotFound(err))
}

func TestStore_Resend_ReplaysStoredEvent(t *testing.T) {
	backend := newTestBackend(t)
	store := New(backend, DefaultConfig())
	ctx := context.Background()

	processed, _ := json.Marshal(map[string]json.RawMessage{"structured_leads": leadsArray(5)})
	event := enrichment.CallbackEvent{Status: enrichment.StatusCompleted, ProcessedData: processed, JobID: "job_4"}
	require.NoError(t, store.Store(ctx, "acct_4", "", "job_4", "generate_leads", event))

	var replayed *enrichment.CallbackEvent
	err := store.Resend(ctx, "acct_4", "", "generate_leads", func(ctx context.Context, e enrichment.CallbackEvent) error {
		replayed = &e
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, replayed)
	assert.Equal(t, "job_4", replayed.JobID)
	_ = time.Now()
}
