package main

import (
	"context"

	"github.com/sells-group/enrichment-engine/internal/callback"
	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// handlerEmitter adapts *callback.Handler onto internal/enrichtask's
// CallbackEmitter interface. Both of this engine's background task
// types run in-process rather than as separate workers reporting back
// over HTTP, so emitting a stage-boundary event is a direct call into
// the same callback algorithm the HTTP surface uses, not a loopback
// request.
type handlerEmitter struct {
	handler *callback.Handler
}

// Emit implements enrichtask.CallbackEmitter.
func (e handlerEmitter) Emit(ctx context.Context, event enrichment.CallbackEvent) error {
	_, err := e.handler.Handle(ctx, event)
	return err
}
