// Package batch implements the concurrency-bounded fan-out/fan-in batch
// processor (spec §4.4), generalizing the teacher's
// internal/fedsync/advextract executeDirectConcurrent pattern from a
// fixed domain (Answer) to a generic Processor[T, R].
package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Gauge is a concurrency-safe in-flight counter. Wiring one into Options
// lets an external observer (internal/monitoring) read the current batch
// queue depth without the processor knowing anything about monitoring.
type Gauge struct {
	n atomic.Int64
}

// Value returns the current count.
func (g *Gauge) Value() int { return int(g.n.Load()) }

func (g *Gauge) inc() { g.n.Add(1) }
func (g *Gauge) dec() { g.n.Add(-1) }

// Result is one entity's outcome: exactly one of Value or Err is set.
type Result[R any] struct {
	EntityID string
	Value    R
	Err      error
}

// ErrorClass buckets a per-entity failure for the run's Metrics.
type ErrorClass string

const (
	ErrorClassAI    ErrorClass = "ai"
	ErrorClassAPI   ErrorClass = "api"
	ErrorClassOther ErrorClass = "other"
)

// Metrics summarises one Processor.Run invocation (spec §4.4 rule 7).
type Metrics struct {
	Total            int
	Successful       int
	Failed           int
	AIErrors         int
	APIErrors        int
	AvgConfidence    float64
	ProcessingTimeS  float64
	Cancelled        bool
}

// Options configures a Processor run.
type Options[T any, R any] struct {
	// BatchSize is the number of entities per batch (spec default 10).
	BatchSize int
	// ConcurrentRequests bounds in-flight batches (spec default 5).
	ConcurrentRequests int
	// Fn is invoked once per entity. A non-nil error becomes a
	// per-entity error result; it never fails the whole batch unless
	// Fn panics (a panic is recovered and treated as a batch-level
	// exception per rule 6).
	Fn func(ctx context.Context, entity T) (R, error)
	// EntityID extracts the opaque entity ID used for reporting.
	EntityID func(entity T) string
	// ClassifyError buckets a per-entity error for Metrics; defaults to
	// ErrorClassOther when nil.
	ClassifyError func(error) ErrorClass
	// Confidence extracts a [0,1] confidence score from a successful
	// value for the AvgConfidence metric; defaults to 0 when nil.
	Confidence func(R) float64
	// OnProgress is invoked every max(1, numBatches/10) batches and
	// after the final batch, with the cumulative completion percentage
	// computed per spec §4.4 rule 5 (10 + (batchIndex+1)/numBatches*80).
	OnProgress func(ctx context.Context, batchIndex, numBatches int, completionPercentage float64)
	// InFlight, if set, is incremented while a batch is dispatched and
	// decremented when it returns, giving an external observer a live
	// queue-depth gauge.
	InFlight *Gauge
}

// Processor runs a per-entity operation over a list of entities with
// batch-and-semaphore fan-out.
type Processor[T any, R any] struct {
	opts Options[T, R]
}

// New constructs a Processor with defaults applied (batch_size=10,
// concurrent_requests=5) when the caller leaves them zero.
func New[T any, R any](opts Options[T, R]) *Processor[T, R] {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.ConcurrentRequests <= 0 {
		opts.ConcurrentRequests = 5
	}
	if opts.ClassifyError == nil {
		opts.ClassifyError = func(error) ErrorClass { return ErrorClassOther }
	}
	if opts.Confidence == nil {
		opts.Confidence = func(R) float64 { return 0 }
	}
	return &Processor[T, R]{opts: opts}
}

// Run executes the batch processor over entities and returns per-entity
// results plus aggregate metrics. ctx cancellation stops dispatching
// further batches; in-flight batches are allowed gracePeriod to finish
// before Run returns with Metrics.Cancelled=true.
func (p *Processor[T, R]) Run(ctx context.Context, entities []T, gracePeriod time.Duration) ([]Result[R], Metrics) {
	start := time.Now()
	results := make([]Result[R], 0, len(entities))
	var mu sync.Mutex

	batches := chunk(entities, p.opts.BatchSize)
	numBatches := len(batches)
	if numBatches == 0 {
		return results, Metrics{}
	}
	progressEvery := numBatches / 10
	if progressEvery < 1 {
		progressEvery = 1
	}

	sem := semaphore.NewWeighted(int64(p.opts.ConcurrentRequests))
	var wg sync.WaitGroup
	var cancelled atomic.Bool

	for batchIndex, b := range batches {
		if ctx.Err() != nil {
			cancelled.Store(true)
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			cancelled.Store(true)
			break
		}

		if p.opts.InFlight != nil {
			p.opts.InFlight.inc()
		}

		wg.Add(1)
		go func(batchIndex int, b []T) {
			defer wg.Done()
			defer sem.Release(1)
			if p.opts.InFlight != nil {
				defer p.opts.InFlight.dec()
			}

			batchResults := p.runBatch(ctx, b)

			mu.Lock()
			results = append(results, batchResults...)
			mu.Unlock()

			last := batchIndex == numBatches-1
			if p.opts.OnProgress != nil && ((batchIndex+1)%progressEvery == 0 || last) {
				pct := 10 + float64(batchIndex+1)/float64(numBatches)*80
				p.opts.OnProgress(ctx, batchIndex, numBatches, pct)
			}
		}(batchIndex, b)
	}

	// Batches run concurrently, bounded by the semaphore; join here so
	// results/metrics reflect every dispatched batch. A cancellation only
	// stops dispatching new batches (the loop above) - already in-flight
	// batches still get gracePeriod to finish before Run gives up on them.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if cancelled.Load() && gracePeriod > 0 {
		select {
		case <-done:
		case <-time.After(gracePeriod):
		}
	} else {
		<-done
	}

	mu.Lock()
	resultsCopy := append([]Result[R](nil), results...)
	mu.Unlock()

	metrics := p.computeMetrics(resultsCopy, time.Since(start).Seconds())
	metrics.Cancelled = cancelled.Load()
	return resultsCopy, metrics
}

// runBatch executes Fn concurrently for every entity in one batch,
// recovering a panic as a batch-level exception that fails every entity
// in the batch (spec §4.4 rule 6).
func (p *Processor[T, R]) runBatch(ctx context.Context, b []T) []Result[R] {
	out := make([]Result[R], len(b))

	func() {
		defer func() {
			if r := recover(); r != nil {
				for i, e := range b {
					out[i] = Result[R]{EntityID: p.opts.EntityID(e), Err: panicError(r)}
				}
			}
		}()

		g, gctx := errgroup.WithContext(ctx)
		for i, e := range b {
			i, e := i, e
			g.Go(func() error {
				v, err := p.opts.Fn(gctx, e)
				out[i] = Result[R]{EntityID: p.opts.EntityID(e), Value: v, Err: err}
				return nil // per-entity errors never fail the group.
			})
		}
		_ = g.Wait()
	}()

	return out
}

func (p *Processor[T, R]) computeMetrics(results []Result[R], elapsedS float64) Metrics {
	m := Metrics{Total: len(results), ProcessingTimeS: elapsedS}
	var confidenceSum float64
	var confidenceN int

	for _, r := range results {
		if r.Err != nil {
			m.Failed++
			switch p.opts.ClassifyError(r.Err) {
			case ErrorClassAI:
				m.AIErrors++
			case ErrorClassAPI:
				m.APIErrors++
			}
			continue
		}
		m.Successful++
		c := p.opts.Confidence(r.Value)
		confidenceSum += c
		confidenceN++
	}
	if confidenceN > 0 {
		m.AvgConfidence = confidenceSum / float64(confidenceN)
	}
	return m
}

// FailedIDs extracts the entity IDs of every errored result, preserving
// order, per spec §4.4 rule 7's (values, failed_ids, metrics) contract.
func FailedIDs[R any](results []Result[R]) []string {
	var ids []string
	for _, r := range results {
		if r.Err != nil {
			ids = append(ids, r.EntityID)
		}
	}
	return ids
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

type recoveredPanic struct{ v any }

func (e *recoveredPanic) Error() string {
	return "batch: recovered panic"
}

func panicError(v any) error {
	return &recoveredPanic{v: v}
}
