// Package customcolumn implements the custom-column task (spec §4.9):
// per entity, compose a prompt from a tenant-declared column, invoke the
// LLM, and coerce the answer into the column's declared response_type.
// Results are recomputed on every run and never written to the result
// store.
package customcolumn

import (
	"context"
	"time"

	"github.com/sells-group/enrichment-engine/internal/batch"
	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// EntityContext is one entity's per-run context, keyed by entity ID on
// the Task (context_data[entity_id] in spec prose).
type EntityContext struct {
	EntityID    string
	Data        map[string]any
	LinkedInURL string
}

// LinkedInActivityFetcher fetches recent LinkedIn activity for an
// entity, used only when the column is configured for LinkedIn-activity
// enrichment (rule 2b).
type LinkedInActivityFetcher interface {
	FetchRecentActivity(ctx context.Context, linkedInURL string) ([]map[string]any, error)
}

// ModelAllowList maps an ai_config.model override to the provider name
// that serves it, implementing rule 1's get_provider(model) lookup. A
// model absent from the list is rejected.
type ModelAllowList map[string]string

// Provider looks up model's provider, reporting ok=false when the model
// is not allow-listed.
func (m ModelAllowList) Provider(model string) (string, bool) {
	if model == "" {
		return "", true
	}
	p, ok := m[model]
	return p, ok
}

// Task is one custom-column run: a column evaluated over a set of
// entities.
type Task struct {
	JobID             string
	TenantID          string
	Column            enrichment.Column
	Entities          []EntityContext
	AIConfig          enrichment.AIConfig
	BatchSize         int
	ConcurrentWorkers int
	OrchestrationData *enrichment.OrchestrationData
	LinkedInEnrich    bool
}

// RunOutcome is the full result of one Task, shaped to feed directly
// into the completed callback (rule 3).
type RunOutcome struct {
	Values  []enrichment.CustomColumnValue
	Metrics batch.Metrics
}

func nowUTC() time.Time { return time.Now().UTC() }
