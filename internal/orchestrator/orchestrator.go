package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/depgraph"
	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// Orchestrator implements start_orchestrated / handle_column_completion
// (spec §4.6).
type Orchestrator struct {
	catalog   ColumnCatalog
	submitter TaskSubmitter
	log       *zap.Logger
}

// New constructs an Orchestrator.
func New(catalog ColumnCatalog, submitter TaskSubmitter, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{catalog: catalog, submitter: submitter, log: log}
}

// StartOrchestrated resolves, expands, and orders the target columns,
// then submits the first one with the remainder carried in
// orchestration_data.next_columns (rule 4).
func (o *Orchestrator) StartOrchestrated(ctx context.Context, req StartRequest) (StartReceipt, error) {
	cols := req.Columns
	if len(cols) == 0 {
		resolved, err := o.catalog.ColumnsForEntityType(ctx, req.EntityType)
		if err != nil {
			return StartReceipt{}, err
		}
		cols = resolved
	}
	if len(cols) == 0 {
		return StartReceipt{}, enrichment.NewValidationError("orchestrator: no columns resolved to orchestrate")
	}

	edges, err := o.catalog.DependencyEdges(ctx, cols)
	if err != nil {
		return StartReceipt{}, err
	}
	graph := depgraph.New(edges)

	expanded := expandWithDependencies(cols, graph.DirectDependencies)

	sorted, err := graph.TopologicalSort(expanded)
	if err != nil {
		o.log.Warn("orchestrator: dependency cycle detected, falling back to original order",
			zap.Strings("columns", expanded), zap.Error(err))
		sorted = expanded
	}

	if err := o.catalog.TouchRefresh(ctx, sorted); err != nil {
		o.log.Warn("orchestrator: touch refresh failed", zap.Error(err))
	}

	head, rest := sorted[0], append([]string(nil), sorted[1:]...)
	submission := SubmitColumnRequest{
		TenantID:  req.TenantID,
		EntityIDs: req.EntityIDs,
		BatchSize: req.BatchSize,
		OrchestrationData: enrichment.OrchestrationData{
			NextColumns: rest,
			EntityIDs:   req.EntityIDs,
			BatchSize:   req.BatchSize,
			TenantID:    req.TenantID,
			RequestID:   req.RequestID,
		},
	}
	if err := o.submitter.SubmitCustomColumn(ctx, head, submission); err != nil {
		return StartReceipt{}, err
	}

	return StartReceipt{
		OrchestrationID: uuid.NewString(),
		FirstColumn:     head,
		Columns:         sorted,
	}, nil
}

// HandleColumnCompletion advances the walk on a completed column, or
// stops the orchestration on a failed one (rule 5).
func (o *Orchestrator) HandleColumnCompletion(ctx context.Context, req CompletionRequest) (StepReceipt, error) {
	if req.Status == enrichment.StatusFailed {
		o.log.Warn("orchestrator: column failed, stopping orchestration",
			zap.String("orchestration_id", req.OrchestrationID), zap.String("column", req.CompletedColumn))
		return StepReceipt{Stopped: true, Reason: "column " + req.CompletedColumn + " failed"}, nil
	}

	if len(req.NextColumns) == 0 {
		return StepReceipt{Done: true}, nil
	}

	head, rest := req.NextColumns[0], append([]string(nil), req.NextColumns[1:]...)
	submission := SubmitColumnRequest{
		TenantID:  req.TenantID,
		EntityIDs: req.EntityIDs,
		BatchSize: req.BatchSize,
		OrchestrationData: enrichment.OrchestrationData{
			NextColumns: rest,
			EntityIDs:   req.EntityIDs,
			BatchSize:   req.BatchSize,
			TenantID:    req.TenantID,
			RequestID:   req.RequestID,
		},
	}
	if err := o.submitter.SubmitCustomColumn(ctx, head, submission); err != nil {
		return StepReceipt{}, err
	}
	return StepReceipt{Submitted: true, NextColumn: head}, nil
}

// expandWithDependencies unions cols with every (transitive) dependency
// reachable via depsOf, preserving input order and appending newly
// discovered dependencies after, deduplicated (rule 2).
func expandWithDependencies(cols []string, depsOf func(string) []string) []string {
	seen := make(map[string]bool, len(cols))
	result := make([]string, 0, len(cols))
	queue := make([]string, 0, len(cols))

	for _, c := range cols {
		if !seen[c] {
			seen[c] = true
			result = append(result, c)
			queue = append(queue, c)
		}
	}
	for i := 0; i < len(queue); i++ {
		for _, dep := range depsOf(queue[i]) {
			if !seen[dep] {
				seen[dep] = true
				result = append(result, dep)
				queue = append(queue, dep)
			}
		}
	}
	return result
}
