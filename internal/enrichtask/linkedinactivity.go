package enrichtask

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/llm"
)

var activityDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2006",
	"Jan 2006",
}

// ActivityEnricher runs the LinkedIn-activity pipeline (spec §4.10): parse
// three raw HTML payloads, extract a structured record per activity via
// the LLM, drop anything past the recency cutoff, then synthesize
// Insights over what survives.
type ActivityEnricher struct {
	Parser  HTMLActivityParser
	LLM     ContentGenerator
	Store   ResultStore
	Emitter CallbackEmitter
	Log     *zap.Logger
	// Now lets tests pin the recency cutoff; nil means time.Now.
	Now func() time.Time
}

func (a *ActivityEnricher) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

func (a *ActivityEnricher) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Run executes one LinkedIn-activity task end to end.
func (a *ActivityEnricher) Run(ctx context.Context, task LinkedInActivityTask) (Insights, error) {
	tracker := newStageTracker(a.Emitter, enrichment.TypeLeadLinkedInResearch, task.JobID, "", task.LeadID, a.logger())
	start := time.Now()

	insights, err := a.run(ctx, task, tracker)
	if err != nil {
		a.fail(ctx, task, err, "linkedin_activity", time.Since(start).Seconds())
		return Insights{}, err
	}

	a.succeed(ctx, task, insights)
	return insights, nil
}

func (a *ActivityEnricher) run(ctx context.Context, task LinkedInActivityTask, tracker *stageTracker) (Insights, error) {
	raw, err := a.parseAll(task)
	if err != nil {
		return Insights{}, err
	}
	tracker.advance(ctx, "html_parse", 20)

	enriched := make([]EnrichedActivity, 0, len(raw))
	cutoff := a.now().AddDate(0, -activityMaxAgeMonths, 0)
	for _, item := range raw {
		act, err := a.extractActivity(ctx, task, item)
		if err != nil {
			a.logger().Warn("enrichtask: activity extraction failed, skipping item",
				zap.String("lead_id", task.LeadID), zap.String("kind", item.Kind), zap.Error(err))
			continue
		}
		if !act.PublishDate.IsZero() && act.PublishDate.Before(cutoff) {
			continue
		}
		enriched = append(enriched, act)
	}
	tracker.advance(ctx, "activity_extraction", 70)

	insights, err := a.generateInsights(ctx, task, enriched)
	if err != nil {
		return Insights{}, fmt.Errorf("enrichtask: insight generation: %w", err)
	}
	tracker.advance(ctx, "insight_generation", pctComplete)
	return insights, nil
}

func (a *ActivityEnricher) parseAll(task LinkedInActivityTask) ([]RawActivity, error) {
	var all []RawActivity
	if task.PostsHTML != "" {
		posts, err := a.Parser.ParsePosts(task.PostsHTML)
		if err != nil {
			return nil, fmt.Errorf("parse posts: %w", err)
		}
		all = append(all, posts...)
	}
	if task.CommentsHTML != "" {
		comments, err := a.Parser.ParseComments(task.CommentsHTML)
		if err != nil {
			return nil, fmt.Errorf("parse comments: %w", err)
		}
		all = append(all, comments...)
	}
	if task.ReactionsHTML != "" {
		reactions, err := a.Parser.ParseReactions(task.ReactionsHTML)
		if err != nil {
			return nil, fmt.Errorf("parse reactions: %w", err)
		}
		all = append(all, reactions...)
	}
	return all, nil
}

func (a *ActivityEnricher) extractActivity(ctx context.Context, task LinkedInActivityTask, item RawActivity) (EnrichedActivity, error) {
	resp, err := a.LLM.GenerateContent(ctx, llm.ContentRequest{
		Prompt: llm.Prompt{
			System: "Extract structured metadata from this LinkedIn activity item. Respond with JSON: " +
				"{\"publish_date\": string, \"summary\": string, \"category\": string, " +
				"\"company_focus\": string, \"mentioned_people\": [string], \"mentioned_products\": [string]}.",
			User: fmt.Sprintf("Kind: %s\nURL: %s\n\nContent:\n%s", item.Kind, item.URL, item.Text),
		},
		IsJSON:       true,
		OperationTag: "linkedin_activity:extraction",
		TenantID:     task.TenantID,
	})
	if err != nil {
		return EnrichedActivity{}, err
	}
	if resp.ExtractionFailed || len(resp.Value) == 0 {
		return EnrichedActivity{}, enrichment.NewFatalTaskError("activity_extraction", "no structured activity returned")
	}
	var parsed enrichedActivityLLM
	if err := json.Unmarshal(resp.Value, &parsed); err != nil {
		return EnrichedActivity{}, fmt.Errorf("unmarshal activity: %w", err)
	}

	published, err := parseActivityDate(parsed.PublishDate)
	if err != nil {
		a.logger().Warn("enrichtask: unparseable activity publish_date, keeping item",
			zap.String("lead_id", task.LeadID), zap.String("raw_date", parsed.PublishDate))
	}

	return EnrichedActivity{
		Kind:              item.Kind,
		PublishDate:       published,
		Summary:           parsed.Summary,
		Category:          parsed.Category,
		CompanyFocus:      parsed.CompanyFocus,
		MentionedPeople:   parsed.MentionedPeople,
		MentionedProducts: parsed.MentionedProducts,
	}, nil
}

func parseActivityDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty publish_date")
	}
	var lastErr error
	for _, layout := range activityDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

func (a *ActivityEnricher) generateInsights(ctx context.Context, task LinkedInActivityTask, activities []EnrichedActivity) (Insights, error) {
	activityJSON, _ := json.Marshal(activities)
	resp, err := a.LLM.GenerateContent(ctx, llm.ContentRequest{
		Prompt: llm.Prompt{
			System: "Given this lead's recent LinkedIn activity, synthesize outreach-relevant insights. " +
				"Respond with JSON: {\"personality\": string, \"areas_of_interest\": [string], " +
				"\"engaged_colleagues\": [string], \"engaged_products\": [string], " +
				"\"outreach_recommendation\": string, \"personalization_signals\": [string]}.",
			User: fmt.Sprintf("Activities:\n%s", activityJSON),
		},
		IsJSON:       true,
		OperationTag: "linkedin_activity:insights",
		TenantID:     task.TenantID,
	})
	if err != nil {
		return Insights{}, err
	}
	if resp.ExtractionFailed || len(resp.Value) == 0 {
		return Insights{}, enrichment.NewFatalTaskError("insight_generation", "no insights returned")
	}
	var out Insights
	if err := json.Unmarshal(resp.Value, &out); err != nil {
		return Insights{}, fmt.Errorf("unmarshal insights: %w", err)
	}
	return out, nil
}

func (a *ActivityEnricher) succeed(ctx context.Context, task LinkedInActivityTask, insights Insights) {
	payload, _ := json.Marshal(insights)
	event := enrichment.CallbackEvent{
		JobID:                task.JobID,
		LeadID:               task.LeadID,
		EnrichmentType:       enrichment.TypeLeadLinkedInResearch,
		Status:               enrichment.StatusCompleted,
		Source:               "linkedin_activity",
		CompletionPercentage: pctComplete,
		ProcessedData:        payload,
	}
	a.deliver(ctx, task, event)
}

func (a *ActivityEnricher) fail(ctx context.Context, task LinkedInActivityTask, err error, stage string, elapsedS float64) {
	event := enrichment.CallbackEvent{
		JobID:          task.JobID,
		LeadID:         task.LeadID,
		EnrichmentType: enrichment.TypeLeadLinkedInResearch,
		Status:         enrichment.StatusFailed,
		Source:         stage,
		ErrorDetails:   enrichment.ToErrorDetails(err, stage, elapsedS),
	}
	a.deliver(ctx, task, event)
}

func (a *ActivityEnricher) deliver(ctx context.Context, task LinkedInActivityTask, event enrichment.CallbackEvent) {
	if a.Emitter != nil {
		if err := a.Emitter.Emit(ctx, event); err != nil {
			a.logger().Warn("enrichtask: terminal callback emit failed", zap.String("lead_id", task.LeadID), zap.Error(err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Store(ctx, "", task.LeadID, task.JobID, string(enrichment.TypeLeadLinkedInResearch), event); err != nil {
			a.logger().Warn("enrichtask: result store write failed", zap.String("lead_id", task.LeadID), zap.Error(err))
		}
	}
}
