// Package callback implements the inbound paginated enrichment callback
// handler: the counterpart to internal/batch's fan-out, merging streamed
// pages produced by external enrichment workers into account/lead state
// and, for terminal payloads, the result store.
package callback

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// StatusStore owns AccountEnrichmentStatus rows. Implementations must
// make Update atomic with respect to concurrent callbacks for the same
// (account, enrichment_type) — the Handler additionally serializes access
// with a per-account lock, but a store shared across processes still
// needs its own consistency guarantee.
type StatusStore interface {
	Get(ctx context.Context, accountID string, enrichmentType enrichment.Type) (*enrichment.AccountEnrichmentStatus, error)
	Update(ctx context.Context, status enrichment.AccountEnrichmentStatus) error
}

// ResultStore is the subset of resultstore.Store the handler needs.
type ResultStore interface {
	Store(ctx context.Context, accountID, leadID, jobID, enrichmentType string, event enrichment.CallbackEvent) error
}

// LeadSink creates or updates a lead by (account, linkedin_url) for a
// single page of a generate_leads stream.
type LeadSink interface {
	UpsertLead(ctx context.Context, accountID string, lead map[string]json.RawMessage) error
}

// LeadGenerationSummarizer rolls up enrichment_sources.lead_generation on
// the account, invoked exactly once per stream, on its final page (rule
// 5).
type LeadGenerationSummarizer interface {
	SummarizeLeadGeneration(ctx context.Context, accountID string, summary enrichment.EnrichmentSourceLeadGen) error
}

// AccountFieldMapper applies a company_info field mapping to the
// account, skipping any field whose value is nil/absent.
type AccountFieldMapper interface {
	ApplyFields(ctx context.Context, accountID string, fields map[string]any) error
}

// LeadEnrichmentHandler routes a lead_linkedin_research callback to the
// per-lead enrichment merge logic owned elsewhere.
type LeadEnrichmentHandler interface {
	HandleLeadEnrichment(ctx context.Context, event enrichment.CallbackEvent) error
}

// CustomColumnHandler routes a custom_column callback onward. Unlike the
// other three enrichment types this dispatch is not status-gated (rule 5).
type CustomColumnHandler interface {
	HandleCustomColumnCallback(ctx context.Context, event enrichment.CallbackEvent) error
}

// TokenVerifier authenticates the short-lived identity token carried by
// an inbound callback request.
type TokenVerifier interface {
	Verify(token string) error
}

// Result is the handler's outcome, shaped to mirror directly onto the
// HTTP response body.
type Result struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Page       int    `json:"page,omitempty"`
	TotalPages int    `json:"total_pages,omitempty"`
}

const (
	resultSuccess    = "success"
	resultSkipped    = "skipped"
	resultProcessing = "processing"
)

func now() time.Time { return time.Now().UTC() }
