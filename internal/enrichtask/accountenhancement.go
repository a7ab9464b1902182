package enrichtask

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/llm"
)

const (
	pctProfileFetched    = 15
	pctStructuredExtract = 35
	pctAnalysisGenerated = 50
	pctTechnographics    = 65
	pctCustomersMerged   = 75
	pctLinkedInResolved  = 90
	pctComplete          = 100
)

// accountStages is the fixed, ordered stage sequence of one
// account-enhancement run; run() advances the tracker through it in
// order.
var accountStages = []struct {
	source  string
	percent float64
}{
	{"web_profile_fetch", pctProfileFetched},
	{"structured_extraction", pctStructuredExtract},
	{"analysis_generation", pctAnalysisGenerated},
	{"technographic_fetch", pctTechnographics},
	{"customer_list_merge", pctCustomersMerged},
	{"linkedin_discovery", pctLinkedInResolved},
	{"build_account_info", pctComplete},
}

// AccountEnhancer runs the account-enhancement pipeline (spec §4.10): a
// fixed stage sequence per account, each stage boundary reported via a
// processing callback, terminated by a completed or failed callback with
// the raw and processed outputs persisted.
type AccountEnhancer struct {
	Profiles   WebProfileFetcher
	Tech       TechnographicFetcher
	TechParser WebsiteTechParser
	LinkedIn   LinkedInDiscoverer
	LLM        ContentGenerator
	Store      ResultStore
	Emitter    CallbackEmitter
	Log        *zap.Logger
}

func (a *AccountEnhancer) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

// Run executes one account-enhancement task end to end.
func (a *AccountEnhancer) Run(ctx context.Context, task AccountEnhancementTask) (AccountInfo, error) {
	tracker := newStageTracker(a.Emitter, enrichment.TypeCompanyInfo, task.JobID, task.AccountID, "", a.logger())
	start := time.Now()

	info, err := a.run(ctx, task, tracker)
	if err != nil {
		a.fail(ctx, task, err, "account_enhancement", time.Since(start).Seconds())
		return AccountInfo{}, err
	}

	a.succeed(ctx, task, info)
	return info, nil
}

func (a *AccountEnhancer) run(ctx context.Context, task AccountEnhancementTask, tracker *stageTracker) (AccountInfo, error) {
	if task.WebsiteURL == "" {
		return AccountInfo{}, enrichment.NewValidationError("enrichtask: account enhancement requires a website_url")
	}

	profile, err := a.Profiles.FetchProfile(ctx, task.WebsiteURL)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("enrichtask: fetch web profile: %w", err)
	}
	tracker.advance(ctx, "web_profile_fetch", pctProfileFetched)

	structured, err := a.extractStructuredProfile(ctx, task, profile)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("enrichtask: structured extraction: %w", err)
	}
	tracker.advance(ctx, "structured_extraction", pctStructuredExtract)

	analysis, err := a.generateAnalysis(ctx, task, profile, structured)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("enrichtask: analysis generation: %w", err)
	}
	tracker.advance(ctx, "analysis_generation", pctAnalysisGenerated)

	techStack, techSource := a.fetchTechStack(ctx, task, profile)
	tracker.advance(ctx, "technographic_fetch", pctTechnographics)

	customers := mergeCustomers(structured.Customers)
	tracker.advance(ctx, "customer_list_merge", pctCustomersMerged)

	linkedInURL, err := a.LinkedIn.DiscoverAndValidate(ctx, task.CompanyName, task.WebsiteURL)
	if err != nil {
		a.logger().Warn("enrichtask: linkedin discovery failed, continuing without it",
			zap.String("account_id", task.AccountID), zap.Error(err))
		linkedInURL = ""
	}
	tracker.advance(ctx, "linkedin_discovery", pctLinkedInResolved)

	fields, _ := json.Marshal(structured.Fields)
	info := AccountInfo{
		AccountID:        task.AccountID,
		CompanyName:      task.CompanyName,
		Summary:          structured.Summary,
		Analysis:         analysis,
		TechStack:        techStack,
		TechStackSource:  techSource,
		Customers:        customers,
		LinkedInURL:      linkedInURL,
		RawProfile:       profile,
		GeneratedAt:      time.Now(),
		StructuredFields: fields,
	}
	tracker.advance(ctx, "build_account_info", pctComplete)
	return info, nil
}

func (a *AccountEnhancer) extractStructuredProfile(ctx context.Context, task AccountEnhancementTask, profile string) (structuredProfile, error) {
	resp, err := a.LLM.GenerateContent(ctx, llm.ContentRequest{
		Prompt: llm.Prompt{
			System: "Extract a structured company summary from the provided web profile text. " +
				"Respond with JSON: {\"summary\": string, \"customers\": [string], \"fields\": object}.",
			User: fmt.Sprintf("Company: %s\n\nWeb profile:\n%s", task.CompanyName, profile),
		},
		IsJSON:       true,
		OperationTag: "account_enhancement:structured_extraction",
		TenantID:     task.TenantID,
	})
	if err != nil {
		return structuredProfile{}, err
	}
	if resp.ExtractionFailed || len(resp.Value) == 0 {
		return structuredProfile{}, enrichment.NewFatalTaskError("structured_extraction", "no structured profile returned")
	}
	var out structuredProfile
	if err := json.Unmarshal(resp.Value, &out); err != nil {
		return structuredProfile{}, fmt.Errorf("unmarshal structured profile: %w", err)
	}
	return out, nil
}

func (a *AccountEnhancer) generateAnalysis(ctx context.Context, task AccountEnhancementTask, profile string, structured structuredProfile) (string, error) {
	resp, err := a.LLM.GenerateContent(ctx, llm.ContentRequest{
		Prompt: llm.Prompt{
			System: "Write a brief analyst note on this company covering positioning, likely buying " +
				"triggers, and anything notable for outbound sales.",
			User: fmt.Sprintf("Company: %s\nSummary: %s\n\nWeb profile:\n%s", task.CompanyName, structured.Summary, profile),
		},
		OperationTag: "account_enhancement:analysis",
		TenantID:     task.TenantID,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// fetchTechStack prefers the technographic API; on error it falls back to
// parsing the fetched profile markup directly (spec §4.10).
func (a *AccountEnhancer) fetchTechStack(ctx context.Context, task AccountEnhancementTask, profile string) ([]string, string) {
	if a.Tech != nil {
		stack, err := a.Tech.FetchTechStack(ctx, task.WebsiteURL)
		if err == nil {
			sort.Strings(stack)
			return stack, "technographic_api"
		}
		a.logger().Warn("enrichtask: technographic fetch failed, falling back to website parse",
			zap.String("account_id", task.AccountID), zap.Error(err))
	}
	if a.TechParser == nil {
		return nil, ""
	}
	stack, err := a.TechParser.ParseTechStack(ctx, profile)
	if err != nil {
		a.logger().Warn("enrichtask: website tech parse failed", zap.String("account_id", task.AccountID), zap.Error(err))
		return nil, ""
	}
	return stack, "website_parse"
}

func mergeCustomers(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (a *AccountEnhancer) succeed(ctx context.Context, task AccountEnhancementTask, info AccountInfo) {
	payload, _ := json.Marshal(info)
	event := enrichment.CallbackEvent{
		JobID:                task.JobID,
		AccountID:            task.AccountID,
		EnrichmentType:       enrichment.TypeCompanyInfo,
		Status:               enrichment.StatusCompleted,
		Source:               "account_enhancement",
		CompletionPercentage: pctComplete,
		ProcessedData:        payload,
	}
	a.deliver(ctx, task, event)
}

func (a *AccountEnhancer) fail(ctx context.Context, task AccountEnhancementTask, err error, stage string, elapsedS float64) {
	event := enrichment.CallbackEvent{
		JobID:          task.JobID,
		AccountID:      task.AccountID,
		EnrichmentType: enrichment.TypeCompanyInfo,
		Status:         enrichment.StatusFailed,
		Source:         stage,
		ErrorDetails:   enrichment.ToErrorDetails(err, stage, elapsedS),
	}
	a.deliver(ctx, task, event)
}

func (a *AccountEnhancer) deliver(ctx context.Context, task AccountEnhancementTask, event enrichment.CallbackEvent) {
	if a.Emitter != nil {
		if err := a.Emitter.Emit(ctx, event); err != nil {
			a.logger().Warn("enrichtask: terminal callback emit failed", zap.String("account_id", task.AccountID), zap.Error(err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Store(ctx, task.AccountID, "", task.JobID, string(enrichment.TypeCompanyInfo), event); err != nil {
			a.logger().Warn("enrichtask: result store write failed", zap.String("account_id", task.AccountID), zap.Error(err))
		}
	}
}
