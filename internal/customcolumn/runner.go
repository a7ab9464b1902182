package customcolumn

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/batch"
	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/llm"
)

// defaultSearchTemperature is the per-call temperature used for
// search-grounded custom-column calls (rule 2d): 0.0 avoids the model
// simulating a search instead of actually grounding on results.
var defaultSearchTemperature = ptrFloat(0.0)

func ptrFloat(f float64) *float64 { return &f }

// Runner executes custom-column tasks (spec §4.9) over the LLM client
// and batch processor.
type Runner struct {
	client    *llm.Client
	allowList ModelAllowList
	linkedIn  LinkedInActivityFetcher
	log       *zap.Logger
}

// NewRunner constructs a Runner. linkedIn may be nil when no column in
// this deployment uses LinkedIn-activity enrichment.
func NewRunner(client *llm.Client, allowList ModelAllowList, linkedIn LinkedInActivityFetcher, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{client: client, allowList: allowList, linkedIn: linkedIn, log: log}
}

// Run executes task end to end and returns the per-entity values plus
// run metrics (rule 3's emit payload, before the caller wraps it in a
// CallbackEvent).
func (r *Runner) Run(ctx context.Context, task Task) (RunOutcome, error) {
	if _, ok := r.allowList.Provider(task.AIConfig.Model); !ok {
		return RunOutcome{}, enrichment.NewValidationError("customcolumn: model %q is not in the allow-list", task.AIConfig.Model)
	}

	processor := batch.New(batch.Options[EntityContext, enrichment.CustomColumnValue]{
		BatchSize:          task.BatchSize,
		ConcurrentRequests: task.ConcurrentWorkers,
		EntityID:           func(ec EntityContext) string { return ec.EntityID },
		Confidence:         func(v enrichment.CustomColumnValue) float64 { return v.ConfidenceScore },
		ClassifyError: func(err error) batch.ErrorClass {
			if enrichment.IsValidation(err) {
				return batch.ErrorClassOther
			}
			return batch.ErrorClassAI
		},
		Fn: func(ctx context.Context, ec EntityContext) (enrichment.CustomColumnValue, error) {
			return r.runOne(ctx, task, ec)
		},
	})

	results, metrics := processor.Run(ctx, task.Entities, 0)

	values := make([]enrichment.CustomColumnValue, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			values = append(values, enrichment.CustomColumnValue{
				ColumnID:     task.Column.ID,
				EntityID:     res.EntityID,
				Status:       enrichment.ValueError,
				ErrorDetails: enrichment.ToErrorDetails(res.Err, "custom_column", 0),
				GeneratedAt:  nowUTC(),
			})
			continue
		}
		values = append(values, res.Value)
	}

	return RunOutcome{Values: values, Metrics: metrics}, nil
}

// runOne implements rule 2's per-entity steps b through f.
func (r *Runner) runOne(ctx context.Context, task Task, ec EntityContext) (enrichment.CustomColumnValue, error) {
	var activity []map[string]any
	if task.LinkedInEnrich && ec.LinkedInURL != "" && r.linkedIn != nil {
		a, err := r.linkedIn.FetchRecentActivity(ctx, ec.LinkedInURL)
		if err != nil {
			r.log.Warn("customcolumn: linkedin activity fetch failed", zap.String("entity_id", ec.EntityID), zap.Error(err))
		} else {
			activity = a
		}
	}

	unstructuredMode := task.AIConfig.Unstructured
	prompt := composePrompt(task.Column, ec, activity, task.AIConfig.UseInternet, unstructuredMode)

	value, rationale, confidence, err := r.invoke(ctx, task, prompt, unstructuredMode)
	if err != nil {
		return enrichment.CustomColumnValue{}, err
	}

	coerced, err := coerceValue(task.Column.ResponseType, task.Column.ResponseConfig, value, rationale, unstructuredMode)
	if err != nil {
		return enrichment.CustomColumnValue{}, err
	}

	result := enrichment.CustomColumnValue{
		ColumnID:        task.Column.ID,
		EntityID:        ec.EntityID,
		ConfidenceScore: clampConfidence(confidence),
		Rationale:       rationale,
		Status:          enrichment.ValueCompleted,
		GeneratedAt:     nowUTC(),
	}
	if coerced.Warning != "" {
		r.log.Warn("customcolumn: response coercion warning",
			zap.String("entity_id", ec.EntityID), zap.String("column_id", task.Column.ID), zap.String("warning", coerced.Warning))
	}
	switch task.Column.ResponseType {
	case enrichment.ResponseString:
		result.ValueString = coerced.String
	case enrichment.ResponseJSONObject:
		result.ValueJSON = coerced.JSON
	case enrichment.ResponseBoolean:
		result.ValueBoolean = coerced.Boolean
	case enrichment.ResponseNumber:
		result.ValueNumber = coerced.Number
	case enrichment.ResponseEnum:
		result.ValueEnum = coerced.Enum
	}
	return result, nil
}

// invoke implements rule 2d: search-grounded or plain generation
// depending on ai_config.use_internet, returning the raw value bytes to
// coerce plus the rationale/confidence already extracted for
// unstructured mode (structured mode extracts them from the JSON
// envelope instead).
func (r *Runner) invoke(ctx context.Context, task Task, prompt llm.Prompt, unstructuredMode bool) (value []byte, rationale string, confidence float64, err error) {
	if task.AIConfig.UseInternet {
		searchReq := llm.SearchRequest{
			Prompt:       prompt,
			Model:        task.AIConfig.Model,
			OperationTag: "custom_column:" + task.Column.ID,
			Temperature:  defaultSearchTemperature,
			TenantID:     task.TenantID,
		}
		if unstructuredMode {
			resp, err := r.client.GenerateSearchContent(ctx, searchReq)
			if err != nil {
				return nil, "", 0, err
			}
			return r.extractAnswer(resp, unstructuredMode)
		}
		resp, err := r.client.GenerateStructuredSearchContent(ctx, llm.StructuredSearchRequest{SearchRequest: searchReq})
		if err != nil {
			return nil, "", 0, err
		}
		return r.extractAnswer(resp, unstructuredMode)
	}

	resp, err := r.client.GenerateContent(ctx, llm.ContentRequest{
		Prompt:         prompt,
		IsJSON:         !unstructuredMode,
		OperationTag:   "custom_column:" + task.Column.ID,
		Temperature:    task.AIConfig.Temperature,
		ThinkingBudget: task.AIConfig.ThinkingBudget,
		Model:          task.AIConfig.Model,
		TenantID:       task.TenantID,
	})
	if err != nil {
		return nil, "", 0, err
	}
	return r.extractAnswer(resp, unstructuredMode)
}

func (r *Runner) extractAnswer(resp llm.Response, unstructuredMode bool) ([]byte, string, float64, error) {
	if unstructuredMode {
		parsed := parseUnstructuredAnswer(resp.Text)
		encoded, err := json.Marshal(parsed.Answer)
		if err != nil {
			return nil, "", 0, err
		}
		return encoded, parsed.Rationale, parsed.Confidence, nil
	}

	answer, err := parseStructuredAnswer(resp)
	if err != nil {
		return nil, "", 0, err
	}
	return answer.Value, answer.Rationale, answer.ConfidenceScore, nil
}
