package main

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/customcolumn"
	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/enrichtask"
)

// taskRequest is the HTTP request body for task submission. It embeds
// TaskPayload and, for custom_column submissions only, the column
// definition itself: the generic TaskPayload (spec §3) never carries a
// column, since that normally lives in the control plane's column
// catalog (internal/orchestrator.ColumnCatalog, deliberately not backed
// by an invented HTTP client here — see DESIGN.md). A caller submitting
// a custom_column task to this engine directly supplies the column it
// wants evaluated.
type taskRequest struct {
	enrichment.TaskPayload
	Column *enrichment.Column `json:"column,omitempty"`
}

// companyInfoContext is the context_data[entity_id] shape expected for a
// company_info task: the two account attributes the enhancement
// pipeline needs before it can fetch anything itself.
type companyInfoContext struct {
	CompanyName string `json:"company_name"`
	WebsiteURL  string `json:"website_url"`
}

// linkedInActivityContext is the context_data[entity_id] shape expected
// for a lead_linkedin_research task: the lead's LinkedIn profile URL,
// scraped here (not by the task itself) so enrichtask.ActivityEnricher
// stays a pure HTML-in, Insights-out transform.
type linkedInActivityContext struct {
	LinkedInURL string `json:"linkedin_url"`
}

// dispatcher turns one validated TaskPayload into calls against the
// concrete task runner for its enrichment_type, bounding concurrent
// in-flight tasks with a semaphore the way the teacher's webhook handler
// bounds concurrent pipeline runs.
type dispatcher struct {
	env *engineEnv
	sem chan struct{}
	wg  sync.WaitGroup
}

func newDispatcher(env *engineEnv, maxConcurrent int) *dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 20
	}
	return &dispatcher{env: env, sem: make(chan struct{}, maxConcurrent)}
}

// errBusy is returned when the dispatcher's semaphore is full.
type errBusy struct{}

func (errBusy) Error() string { return "dispatcher: too many concurrent tasks" }

// Submit validates req and, if accepted, runs it asynchronously on a
// background context (so an in-flight task survives the submitting
// request's cancellation) and returns immediately. It returns errBusy if
// no capacity slot is available.
func (d *dispatcher) Submit(req taskRequest) error {
	req.Defaults()
	if len(req.EntityIDs) == 0 {
		return enrichment.NewValidationError("dispatch: entity_ids is required")
	}
	if req.EnrichmentType == enrichment.TypeCustomColumn && req.Column == nil {
		return enrichment.NewValidationError("dispatch: custom_column submissions require a column")
	}

	select {
	case d.sem <- struct{}{}:
	default:
		return errBusy{}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("task dispatch panicked",
					zap.String("job_id", req.JobID),
					zap.Any("panic", r),
					zap.Stack("stack"))
			}
		}()
		d.run(context.Background(), req)
	}()
	return nil
}

// Drain waits for every in-flight dispatched task to finish.
func (d *dispatcher) Drain() { d.wg.Wait() }

func (d *dispatcher) run(ctx context.Context, req taskRequest) {
	log := zap.L().With(zap.String("job_id", req.JobID), zap.String("enrichment_type", string(req.EnrichmentType)))

	switch req.EnrichmentType {
	case enrichment.TypeCompanyInfo:
		d.runCompanyInfo(ctx, req.TaskPayload, log)
	case enrichment.TypeLeadLinkedInResearch:
		d.runLinkedInActivity(ctx, req.TaskPayload, log)
	case enrichment.TypeCustomColumn:
		d.runCustomColumn(ctx, req, log)
	default:
		// generate_leads is produced by an external lead-generation
		// worker that reports back through the callback stream
		// directly; this engine never originates that task type.
		log.Error("dispatch: enrichment_type is not submittable to this engine")
	}
}

func (d *dispatcher) runCompanyInfo(ctx context.Context, payload enrichment.TaskPayload, log *zap.Logger) {
	accountID := payload.EntityIDs[0]
	var taskCtx companyInfoContext
	if raw, ok := payload.ContextData[accountID]; ok {
		if err := json.Unmarshal(raw, &taskCtx); err != nil {
			log.Error("dispatch: invalid company_info context_data", zap.Error(err))
			return
		}
	}

	task := enrichtask.AccountEnhancementTask{
		JobID:       payload.JobID,
		TenantID:    payload.TenantID,
		AccountID:   accountID,
		CompanyName: taskCtx.CompanyName,
		WebsiteURL:  taskCtx.WebsiteURL,
	}
	if _, err := d.env.AccountEnhancer.Run(ctx, task); err != nil {
		log.Error("company_info task failed", zap.Error(err))
	}
}

func (d *dispatcher) runLinkedInActivity(ctx context.Context, payload enrichment.TaskPayload, log *zap.Logger) {
	leadID := payload.EntityIDs[0]
	var taskCtx linkedInActivityContext
	if raw, ok := payload.ContextData[leadID]; ok {
		if err := json.Unmarshal(raw, &taskCtx); err != nil {
			log.Error("dispatch: invalid lead_linkedin_research context_data", zap.Error(err))
			return
		}
	}
	if taskCtx.LinkedInURL == "" {
		log.Error("dispatch: lead_linkedin_research requires a linkedin_url")
		return
	}

	posts, comments, reactions, err := d.env.ActivityFetcher.FetchRawActivity(ctx, taskCtx.LinkedInURL)
	if err != nil {
		log.Error("linkedin activity scrape failed", zap.Error(err))
		return
	}

	task := enrichtask.LinkedInActivityTask{
		JobID:         payload.JobID,
		TenantID:      payload.TenantID,
		LeadID:        leadID,
		PostsHTML:     posts,
		CommentsHTML:  comments,
		ReactionsHTML: reactions,
	}
	if _, err := d.env.ActivityEnricher.Run(ctx, task); err != nil {
		log.Error("lead_linkedin_research task failed", zap.Error(err))
	}
}

// customColumnOutcome is the processed_data shape for a custom_column
// completed callback (rule 3): the per-entity values plus run metrics.
type customColumnOutcome struct {
	Values  []enrichment.CustomColumnValue `json:"values"`
	Metrics any                            `json:"metrics"`
}

// buildCustomColumnTask turns a custom_column taskRequest into the
// customcolumn.Task shape the runner expects, resolving each entity's
// context_data and LinkedIn URL. Shared between the async dispatcher and
// the synchronous "run" command.
func buildCustomColumnTask(req taskRequest) customcolumn.Task {
	entities := make([]customcolumn.EntityContext, 0, len(req.EntityIDs))
	for _, id := range req.EntityIDs {
		ec := customcolumn.EntityContext{EntityID: id}
		if raw, ok := req.ContextData[id]; ok {
			var data map[string]any
			if err := json.Unmarshal(raw, &data); err == nil {
				ec.Data = data
				if v, ok := data["linkedin_url"].(string); ok {
					ec.LinkedInURL = v
				}
			}
		}
		entities = append(entities, ec)
	}

	return customcolumn.Task{
		JobID:             req.JobID,
		TenantID:          req.TenantID,
		Column:            *req.Column,
		Entities:          entities,
		AIConfig:          req.AIConfig,
		BatchSize:         req.BatchSize,
		ConcurrentWorkers: req.ConcurrentRequests,
		OrchestrationData: req.OrchestrationData,
		LinkedInEnrich:    containsLinkedInEntity(entities),
	}
}

func (d *dispatcher) runCustomColumn(ctx context.Context, req taskRequest, log *zap.Logger) {
	task := buildCustomColumnTask(req)

	outcome, err := d.env.ColumnRunner.Run(ctx, task)
	if err != nil {
		log.Error("custom_column task failed", zap.Error(err))
		return
	}

	processed, err := json.Marshal(customColumnOutcome{Values: outcome.Values, Metrics: outcome.Metrics})
	if err != nil {
		log.Error("dispatch: marshal custom_column outcome", zap.Error(err))
		return
	}

	event := enrichment.CallbackEvent{
		JobID:             req.JobID,
		AccountID:         req.EntityIDs[0],
		EnrichmentType:    enrichment.TypeCustomColumn,
		Status:            enrichment.StatusCompleted,
		ProcessedData:     processed,
		OrchestrationData: req.OrchestrationData,
	}
	if _, err := d.env.CallbackHandler.Handle(ctx, event); err != nil {
		log.Error("dispatch: custom_column completed callback failed", zap.Error(err))
	}
}

// containsLinkedInEntity reports whether any entity carries a LinkedIn
// URL, used only as a cheap signal for whether LinkedIn-activity
// enrichment is worth attempting for this run.
func containsLinkedInEntity(entities []customcolumn.EntityContext) bool {
	for _, e := range entities {
		if e.LinkedInURL != "" {
			return true
		}
	}
	return false
}
