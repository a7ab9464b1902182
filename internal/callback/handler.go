package callback

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// Handler implements the paginated enrichment callback algorithm.
// Dispatch targets are optional: a nil target is treated as "this
// enrichment type is not wired yet" and the dispatch step is skipped
// without failing the callback, so the handler can be stood up
// incrementally as the rest of the engine comes online.
type Handler struct {
	status  StatusStore
	results ResultStore

	leads          LeadSink
	leadGenSummary LeadGenerationSummarizer
	accountFields  AccountFieldMapper
	leadResearch   LeadEnrichmentHandler
	customColumn   CustomColumnHandler

	locker *accountLocker
}

// New constructs a Handler. Any dispatch target may be nil.
func New(status StatusStore, results ResultStore, leads LeadSink, leadGenSummary LeadGenerationSummarizer, accountFields AccountFieldMapper, leadResearch LeadEnrichmentHandler, customColumn CustomColumnHandler) *Handler {
	return &Handler{
		status:         status,
		results:        results,
		leads:          leads,
		leadGenSummary: leadGenSummary,
		accountFields:  accountFields,
		leadResearch:   leadResearch,
		customColumn:   customColumn,
		locker:         newAccountLocker(),
	}
}

// Handle runs the full callback algorithm (spec §4.7) for one inbound
// event, under a per-account exclusive lock.
func (h *Handler) Handle(ctx context.Context, event enrichment.CallbackEvent) (Result, error) {
	if event.AccountID == "" {
		return Result{}, enrichment.NewValidationError("callback: account_id is required")
	}

	// Custom-column callbacks are not status-gated (rule 5): they bypass
	// the AccountEnrichmentStatus skip policy entirely and go straight to
	// dispatch, still under the per-account lock to serialize with other
	// concurrent callbacks for the same account.
	if event.EnrichmentType == enrichment.TypeCustomColumn {
		var result Result
		err := h.locker.withLock(event.AccountID, func() error {
			var dispatchErr error
			result, dispatchErr = h.dispatchAndStore(ctx, event)
			return dispatchErr
		})
		return result, err
	}

	var result Result
	err := h.locker.withLock(event.AccountID, func() error {
		prev, err := h.status.Get(ctx, event.AccountID, event.EnrichmentType)
		if err != nil && !enrichment.IsNotFound(err) {
			return eris.Wrap(err, "callback: load account status")
		}

		d := evaluateSkipPolicy(prev, event)
		if d.skip {
			result = Result{Status: resultSkipped, Reason: d.reason}
			if event.Pagination != nil {
				result.Page = event.Pagination.Page
				result.TotalPages = event.Pagination.TotalPages
			}
			return nil
		}

		next := mergeStatus(prev, event.AccountID, event)
		if err := h.status.Update(ctx, next); err != nil {
			return eris.Wrap(err, "callback: update account status")
		}

		if event.Pagination != nil && !isFinalPage(event) {
			result = Result{Status: resultProcessing, Page: event.Pagination.Page, TotalPages: event.Pagination.TotalPages}
			// Intermediate pages still flow through dispatch (e.g. a
			// lead-generation stream creates/updates leads per page)
			// but do not yet reach the result store.
			if err := h.dispatch(ctx, event); err != nil {
				return err
			}
			return nil
		}

		r, err := h.dispatchAndStore(ctx, event)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// dispatchAndStore runs dispatch and hands the event to the result store
// (which keeps only completed events). Custom-column events are never
// passed to the result store.
func (h *Handler) dispatchAndStore(ctx context.Context, event enrichment.CallbackEvent) (Result, error) {
	if err := h.dispatch(ctx, event); err != nil {
		return Result{}, err
	}
	if h.results != nil && event.EnrichmentType != enrichment.TypeCustomColumn {
		if err := h.results.Store(ctx, event.AccountID, event.LeadID, event.JobID, string(event.EnrichmentType), event); err != nil {
			return Result{}, eris.Wrap(err, "callback: store result")
		}
	}
	page, total := 0, 0
	if event.Pagination != nil {
		page, total = event.Pagination.Page, event.Pagination.TotalPages
	}
	return Result{Status: resultSuccess, Page: page, TotalPages: total}, nil
}

// dispatch implements rule 5's routing table.
func (h *Handler) dispatch(ctx context.Context, event enrichment.CallbackEvent) error {
	switch event.EnrichmentType {
	case enrichment.TypeGenerateLeads:
		return h.dispatchLeadGeneration(ctx, event)
	case enrichment.TypeCompanyInfo:
		if h.accountFields != nil {
			fields, err := decodeFields(event.ProcessedData)
			if err != nil {
				return eris.Wrap(err, "callback: decode company_info fields")
			}
			if err := h.accountFields.ApplyFields(ctx, event.AccountID, filterNilFields(fields)); err != nil {
				return eris.Wrap(err, "callback: apply company_info fields")
			}
		}
	case enrichment.TypeLeadLinkedInResearch:
		if h.leadResearch != nil {
			if err := h.leadResearch.HandleLeadEnrichment(ctx, event); err != nil {
				return eris.Wrap(err, "callback: lead linkedin research")
			}
		}
	case enrichment.TypeCustomColumn:
		if h.customColumn != nil {
			if err := h.customColumn.HandleCustomColumnCallback(ctx, event); err != nil {
				return eris.Wrap(err, "callback: custom column")
			}
		}
	}
	return nil
}

// dispatchLeadGeneration streams per-page leads and, only on the final
// page, rolls up enrichment_sources.lead_generation (rule 5).
func (h *Handler) dispatchLeadGeneration(ctx context.Context, event enrichment.CallbackEvent) error {
	payload, err := decodeLeadGenerationPayload(event.ProcessedData)
	if err != nil {
		return eris.Wrap(err, "callback: decode leads page")
	}

	if h.leads != nil {
		for _, lead := range payload.leadRows() {
			if err := h.leads.UpsertLead(ctx, event.AccountID, lead); err != nil {
				return eris.Wrap(err, "callback: upsert lead")
			}
		}
	}

	if h.leadGenSummary != nil && isFinalPage(event) {
		summary := enrichment.EnrichmentSourceLeadGen{
			LastRun:           now(),
			LeadsFound:        len(payload.AllLeads),
			QualifiedLeads:    len(payload.QualifiedLeads),
			ScoreDistribution: payload.ScoreDistribution,
		}
		if err := h.leadGenSummary.SummarizeLeadGeneration(ctx, event.AccountID, summary); err != nil {
			return eris.Wrap(err, "callback: summarize lead generation")
		}
	}
	return nil
}

func decodeFields(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func filterNilFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// leadGenerationPayload is the processed_data shape of a generate_leads
// page: all_leads carries the rows to upsert this page, structured_leads
// is the fallback when a worker only emits the curated subset, and
// qualified_leads/score_distribution feed the final-page rollup only.
type leadGenerationPayload struct {
	AllLeads          []map[string]json.RawMessage `json:"all_leads"`
	StructuredLeads   []map[string]json.RawMessage `json:"structured_leads"`
	QualifiedLeads    []map[string]json.RawMessage `json:"qualified_leads"`
	ScoreDistribution map[string]int               `json:"score_distribution"`
}

func (p leadGenerationPayload) leadRows() []map[string]json.RawMessage {
	if len(p.AllLeads) > 0 {
		return p.AllLeads
	}
	return p.StructuredLeads
}

func decodeLeadGenerationPayload(raw json.RawMessage) (leadGenerationPayload, error) {
	if len(raw) == 0 {
		return leadGenerationPayload{}, nil
	}
	var payload leadGenerationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return leadGenerationPayload{}, err
	}
	return payload, nil
}
