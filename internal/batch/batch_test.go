package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessor_PerEntityIsolation(t *testing.T) {
	entities := []string{"e1", "e2", "e3", "e4", "e5"}
	p := New(Options[string, int]{
		BatchSize:          2,
		ConcurrentRequests: 2,
		EntityID:           func(e string) string { return e },
		Fn: func(ctx context.Context, e string) (int, error) {
			if e == "e3" {
				return 0, errors.New("boom")
			}
			return 1, nil
		},
	})

	results, metrics := p.Run(context.Background(), entities, 0)
	require.Len(t, results, len(entities))
	assert.Equal(t, 5, metrics.Total)
	assert.Equal(t, 4, metrics.Successful)
	assert.Equal(t, 1, metrics.Failed)
	assert.Equal(t, []string{"e3"}, FailedIDs(results))
}

func TestProcessor_ProgressReachesFinalPercentage(t *testing.T) {
	entities := make([]string, 23)
	for i := range entities {
		entities[i] = "e"
	}
	var mu sync.Mutex
	var pcts []float64
	p := New(Options[string, int]{
		BatchSize:          2,
		ConcurrentRequests: 3,
		EntityID:           func(e string) string { return e },
		Fn: func(ctx context.Context, e string) (int, error) { return 1, nil },
		OnProgress: func(ctx context.Context, batchIndex, numBatches int, pct float64) {
			mu.Lock()
			pcts = append(pcts, pct)
			mu.Unlock()
		},
	})

	_, metrics := p.Run(context.Background(), entities, 0)
	require.NotEmpty(t, pcts)
	// Batches now run concurrently (bounded by ConcurrentRequests), so
	// completion order - and therefore the order OnProgress fires in -
	// isn't guaranteed to follow batchIndex. Every reported percentage
	// must still fall in the valid [10,90] range, and the final batch's
	// 90% must have been reported exactly once.
	var reachedFinal int
	for _, pct := range pcts {
		assert.GreaterOrEqual(t, pct, 10.0)
		assert.LessOrEqual(t, pct, 90.0)
		if pct > 89.999 {
			reachedFinal++
		}
	}
	assert.Equal(t, 1, reachedFinal)
	assert.Equal(t, 23, metrics.Total)
}

func TestProcessor_BatchPanicFailsWholeBatch(t *testing.T) {
	entities := []string{"e1", "e2"}
	p := New(Options[string, int]{
		BatchSize:          2,
		ConcurrentRequests: 1,
		EntityID:           func(e string) string { return e },
		Fn: func(ctx context.Context, e string) (int, error) {
			panic("adapter exploded")
		},
	})

	results, metrics := p.Run(context.Background(), entities, time.Second)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
	assert.Equal(t, 2, metrics.Failed)
}

func TestProcessor_CancellationStopsDispatch(t *testing.T) {
	entities := []string{"e1", "e2", "e3", "e4", "e5", "e6"}
	ctx, cancel := context.WithCancel(context.Background())

	p := New(Options[string, int]{
		BatchSize:          1,
		ConcurrentRequests: 1,
		EntityID:           func(e string) string { return e },
		Fn: func(ctx context.Context, e string) (int, error) {
			return 1, nil
		},
		OnProgress: func(ctx context.Context, batchIndex, numBatches int, pct float64) {
			if batchIndex == 1 {
				cancel()
			}
		},
	})

	results, metrics := p.Run(ctx, entities, time.Millisecond)
	assert.True(t, metrics.Cancelled)
	assert.Less(t, len(results), len(entities))
}
