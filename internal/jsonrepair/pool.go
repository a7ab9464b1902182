// Package jsonrepair offloads CPU-bound JSON extraction/repair work (the
// permissive markdown-fence-stripping, balanced-span, and malformed-JSON
// repair pipeline in internal/llm) onto a small fixed worker pool, so a
// flood of large LLM responses can't stall the goroutines serving
// concurrent requests.
package jsonrepair

import (
	"context"
	"encoding/json"
	"runtime"
)

// ExtractFunc is the shape of the extraction routine a Pool runs;
// internal/llm.ExtractJSON satisfies it. Taking it as a parameter rather
// than importing internal/llm avoids a dependency cycle, since llm is
// the package that calls into this one.
type ExtractFunc func(text string) (json.RawMessage, bool)

// Result is one job's outcome.
type Result struct {
	Value            json.RawMessage
	ExtractionFailed bool
}

type job struct {
	text string
	fn   ExtractFunc
	resp chan Result
}

// Pool runs ExtractFunc calls on a fixed set of worker goroutines behind
// a buffered job channel.
type Pool struct {
	jobs chan job
}

// New starts a Pool with the given number of workers. workers <= 0
// defaults to GOMAXPROCS; the job queue is sized to workers*4 so a burst
// of submissions queues instead of blocking the submitter immediately.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{jobs: make(chan job, workers*4)}
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	for j := range p.jobs {
		v, failed := j.fn(j.text)
		j.resp <- Result{Value: v, ExtractionFailed: failed}
	}
}

// Extract submits text to the pool and blocks until a worker processes
// it or ctx is cancelled.
func (p *Pool) Extract(ctx context.Context, text string, fn ExtractFunc) (Result, error) {
	resp := make(chan Result, 1)
	select {
	case p.jobs <- job{text: text, fn: fn, resp: resp}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close stops accepting new submissions. Jobs already queued still run;
// callers that need to wait for drain should stop submitting and give
// workers time to finish before process exit.
func (p *Pool) Close() {
	close(p.jobs)
}
