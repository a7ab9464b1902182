package enrichtask

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/llm"
)

type fakeEmitter struct {
	events []enrichment.CallbackEvent
}

func (f *fakeEmitter) Emit(ctx context.Context, event enrichment.CallbackEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeResultStore struct {
	calls []enrichment.CallbackEvent
}

func (f *fakeResultStore) Store(ctx context.Context, accountID, leadID, jobID, enrichmentType string, event enrichment.CallbackEvent) error {
	f.calls = append(f.calls, event)
	return nil
}

type fakeProfileFetcher struct {
	profile string
	err     error
}

func (f *fakeProfileFetcher) FetchProfile(ctx context.Context, websiteURL string) (string, error) {
	return f.profile, f.err
}

type fakeTechFetcher struct {
	stack []string
	err   error
}

func (f *fakeTechFetcher) FetchTechStack(ctx context.Context, websiteURL string) ([]string, error) {
	return f.stack, f.err
}

type fakeTechParser struct {
	stack []string
}

func (f *fakeTechParser) ParseTechStack(ctx context.Context, profile string) ([]string, error) {
	return f.stack, nil
}

type fakeLinkedIn struct {
	url string
	err error
}

func (f *fakeLinkedIn) DiscoverAndValidate(ctx context.Context, companyName, websiteURL string) (string, error) {
	return f.url, f.err
}

// fakeGenerator returns responses in call order; it implements
// ContentGenerator without needing a real llm.Client/Provider.
type fakeGenerator struct {
	responses []llm.Response
	calls     []llm.ContentRequest
	i         int
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, req llm.ContentRequest) (llm.Response, error) {
	f.calls = append(f.calls, req)
	if f.i >= len(f.responses) {
		return llm.Response{}, assertNoMoreResponses
	}
	resp := f.responses[f.i]
	f.i++
	return resp, nil
}

var assertNoMoreResponses = errString("fakeGenerator: no more responses queued")

type errString string

func (e errString) Error() string { return string(e) }

func jsonResp(v any) llm.Response {
	b, _ := json.Marshal(v)
	return llm.Response{Value: b, Text: string(b)}
}

func TestAccountEnhancer_Run_HappyPath(t *testing.T) {
	emitter := &fakeEmitter{}
	store := &fakeResultStore{}
	gen := &fakeGenerator{
		responses: []llm.Response{
			jsonResp(structuredProfile{Summary: "Makes widgets.", Customers: []string{"Acme", "Acme", ""}}),
			{Text: "Strong fit for our platform."},
		},
	}
	enhancer := &AccountEnhancer{
		Profiles:   &fakeProfileFetcher{profile: "raw profile text"},
		Tech:       &fakeTechFetcher{stack: []string{"React", "AWS"}},
		TechParser: &fakeTechParser{stack: []string{"fallback-only"}},
		LinkedIn:   &fakeLinkedIn{url: "https://linkedin.com/company/acme"},
		LLM:        gen,
		Store:      store,
		Emitter:    emitter,
	}

	info, err := enhancer.Run(context.Background(), AccountEnhancementTask{
		JobID: "job-1", AccountID: "acct-1", CompanyName: "Acme Co", WebsiteURL: "https://acme.example",
	})
	require.NoError(t, err)

	assert.Equal(t, "Makes widgets.", info.Summary)
	assert.Equal(t, "Strong fit for our platform.", info.Analysis)
	assert.Equal(t, []string{"AWS", "React"}, info.TechStack)
	assert.Equal(t, "technographic_api", info.TechStackSource)
	assert.Equal(t, []string{"Acme"}, info.Customers)
	assert.Equal(t, "https://linkedin.com/company/acme", info.LinkedInURL)

	require.Len(t, emitter.events, len(accountStages)+1)
	for i, stage := range accountStages {
		assert.Equal(t, enrichment.StatusProcessing, emitter.events[i].Status)
		assert.Equal(t, stage.source, emitter.events[i].Source)
	}
	terminal := emitter.events[len(emitter.events)-1]
	assert.Equal(t, enrichment.StatusCompleted, terminal.Status)
	assert.Equal(t, enrichment.TypeCompanyInfo, terminal.EnrichmentType)

	require.Len(t, store.calls, 1)
	assert.Equal(t, enrichment.StatusCompleted, store.calls[0].Status)
}

func TestAccountEnhancer_Run_TechnographicFallsBackOnError(t *testing.T) {
	gen := &fakeGenerator{
		responses: []llm.Response{
			jsonResp(structuredProfile{Summary: "s"}),
			{Text: "analysis"},
		},
	}
	enhancer := &AccountEnhancer{
		Profiles:   &fakeProfileFetcher{profile: "profile"},
		Tech:       &fakeTechFetcher{err: errString("technographic api down")},
		TechParser: &fakeTechParser{stack: []string{"jQuery"}},
		LinkedIn:   &fakeLinkedIn{},
		LLM:        gen,
	}

	info, err := enhancer.Run(context.Background(), AccountEnhancementTask{
		JobID: "job-2", AccountID: "acct-2", WebsiteURL: "https://x.example",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"jQuery"}, info.TechStack)
	assert.Equal(t, "website_parse", info.TechStackSource)
}

func TestAccountEnhancer_Run_MissingWebsiteURLIsValidationError(t *testing.T) {
	enhancer := &AccountEnhancer{}
	_, err := enhancer.Run(context.Background(), AccountEnhancementTask{JobID: "job-3", AccountID: "acct-3"})
	assert.True(t, enrichment.IsValidation(err))
}

func TestAccountEnhancer_Run_ProfileFetchFailureEmitsFailedCallback(t *testing.T) {
	emitter := &fakeEmitter{}
	store := &fakeResultStore{}
	enhancer := &AccountEnhancer{
		Profiles: &fakeProfileFetcher{err: errString("dns failure")},
		Emitter:  emitter,
		Store:    store,
	}

	_, err := enhancer.Run(context.Background(), AccountEnhancementTask{
		JobID: "job-4", AccountID: "acct-4", WebsiteURL: "https://x.example",
	})
	require.Error(t, err)
	require.Len(t, emitter.events, 1)
	assert.Equal(t, enrichment.StatusFailed, emitter.events[0].Status)
	require.Len(t, store.calls, 1)
	assert.Equal(t, enrichment.StatusFailed, store.calls[0].Status)
}

type fakeHTMLParser struct {
	posts, comments, reactions []RawActivity
}

func (f *fakeHTMLParser) ParsePosts(html string) ([]RawActivity, error)     { return f.posts, nil }
func (f *fakeHTMLParser) ParseComments(html string) ([]RawActivity, error) { return f.comments, nil }
func (f *fakeHTMLParser) ParseReactions(html string) ([]RawActivity, error) {
	return f.reactions, nil
}

func TestActivityEnricher_Run_DropsActivitiesOlderThanCutoff(t *testing.T) {
	fixedNow := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	parser := &fakeHTMLParser{
		posts: []RawActivity{{Kind: "post", Text: "recent post"}, {Kind: "post", Text: "stale post"}},
	}
	gen := &fakeGenerator{
		responses: []llm.Response{
			jsonResp(enrichedActivityLLM{PublishDate: "2026-06-01", Summary: "recent", Category: "product"}),
			jsonResp(enrichedActivityLLM{PublishDate: "2024-01-01", Summary: "stale", Category: "product"}),
			jsonResp(Insights{Personality: "curious", AreasOfInterest: []string{"ai"}}),
		},
	}
	enricher := &ActivityEnricher{Parser: parser, LLM: gen, Now: func() time.Time { return fixedNow }}

	insights, err := enricher.Run(context.Background(), LinkedInActivityTask{
		JobID: "job-5", LeadID: "lead-1", PostsHTML: "<html>posts</html>",
	})
	require.NoError(t, err)
	assert.Equal(t, "curious", insights.Personality)

	// Only the recent activity's content should have reached the insight
	// generation prompt.
	lastCall := gen.calls[len(gen.calls)-1]
	assert.Contains(t, lastCall.Prompt.User, "recent")
	assert.NotContains(t, lastCall.Prompt.User, "\"summary\":\"stale\"")
}

func TestActivityEnricher_Run_EmitsProcessingThenCompleted(t *testing.T) {
	emitter := &fakeEmitter{}
	parser := &fakeHTMLParser{comments: []RawActivity{{Kind: "comment", Text: "nice post"}}}
	gen := &fakeGenerator{
		responses: []llm.Response{
			jsonResp(enrichedActivityLLM{PublishDate: "2026-06-01", Summary: "s", Category: "c"}),
			jsonResp(Insights{Personality: "p"}),
		},
	}
	enricher := &ActivityEnricher{Parser: parser, LLM: gen, Emitter: emitter}

	_, err := enricher.Run(context.Background(), LinkedInActivityTask{
		JobID: "job-6", LeadID: "lead-2", CommentsHTML: "<html>comments</html>",
	})
	require.NoError(t, err)

	require.Len(t, emitter.events, 4)
	for _, e := range emitter.events[:3] {
		assert.Equal(t, enrichment.StatusProcessing, e.Status)
	}
	assert.Equal(t, enrichment.StatusCompleted, emitter.events[3].Status)
	assert.Equal(t, enrichment.TypeLeadLinkedInResearch, emitter.events[3].EnrichmentType)

	// completion percentage never regresses across the emitted sequence.
	last := 0.0
	for _, e := range emitter.events {
		assert.GreaterOrEqual(t, e.CompletionPercentage, last)
		last = e.CompletionPercentage
	}
}

func TestParseActivityDate_SupportsMultipleLayouts(t *testing.T) {
	for _, raw := range []string{"2026-01-15", "January 15, 2026", "Jan 15, 2026"} {
		got, err := parseActivityDate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, 2026, got.Year())
	}
}

func TestParseActivityDate_EmptyIsError(t *testing.T) {
	_, err := parseActivityDate("")
	assert.Error(t, err)
}

func TestMergeCustomers_DedupesAndSorts(t *testing.T) {
	got := mergeCustomers([]string{"Zeta", "Acme", "", "Acme"})
	assert.Equal(t, []string{"Acme", "Zeta"}, got)
}
