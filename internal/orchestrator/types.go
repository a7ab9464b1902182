// Package orchestrator implements the column-generation orchestrator
// (spec §4.6): resolve a target column set, expand it by dependency
// closure, topologically order it, and walk the order one custom-column
// task at a time across task-boundary callbacks.
package orchestrator

import (
	"context"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// ColumnCatalog is the control-plane-owned source of truth for which
// columns exist and how they depend on each other. The orchestrator core
// never persists column definitions itself.
type ColumnCatalog interface {
	// ColumnsForEntityType resolves every active column for entityType,
	// used when StartRequest.Columns is empty.
	ColumnsForEntityType(ctx context.Context, entityType enrichment.EntityKind) ([]string, error)
	// DependencyEdges returns every dependency edge reachable
	// (transitively) from seedColumns, enough to expand and sort them.
	DependencyEdges(ctx context.Context, seedColumns []string) ([]enrichment.ColumnDependency, error)
	// TouchRefresh bumps last_refresh on the given columns for
	// idempotency tracking (spec §4.6 invariants).
	TouchRefresh(ctx context.Context, columns []string) error
}

// SubmitColumnRequest is what the orchestrator hands to TaskSubmitter for
// one column in the walk.
type SubmitColumnRequest struct {
	TenantID          string
	EntityIDs         []string
	BatchSize         int
	OrchestrationData enrichment.OrchestrationData
}

// TaskSubmitter dispatches one custom-column task; concretely, this is
// wired to whatever enqueues an internal/customcolumn.Task for columnID.
type TaskSubmitter interface {
	SubmitCustomColumn(ctx context.Context, columnID string, req SubmitColumnRequest) error
}

// StartRequest is start_orchestrated's input.
type StartRequest struct {
	TenantID   string
	RequestID  string
	EntityIDs  []string
	Columns    []string // explicit list; empty means resolve by EntityType.
	EntityType enrichment.EntityKind
	BatchSize  int
}

// StartReceipt is start_orchestrated's return value.
type StartReceipt struct {
	OrchestrationID string
	FirstColumn     string
	Columns         []string // full topologically sorted order.
}

// CompletionRequest is handle_column_completion's input.
type CompletionRequest struct {
	OrchestrationID string
	TenantID        string
	RequestID       string
	CompletedColumn string
	Status          enrichment.Status
	EntityIDs       []string
	BatchSize       int
	NextColumns     []string
}

// StepReceipt is handle_column_completion's return value.
type StepReceipt struct {
	Submitted  bool
	NextColumn string
	Done       bool
	Stopped    bool
	Reason     string
}
