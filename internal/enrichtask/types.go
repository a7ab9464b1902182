// Package enrichtask implements the two staged background pipelines named
// in spec §4.10: account enhancement (web profile → structured extraction
// → analysis → technographics → LinkedIn discovery → typed AccountInfo)
// and LinkedIn-activity enrichment (parsed HTML → per-activity LLM
// extraction → recency filter → Insights). Both emit the same
// processing/completed/failed callback lifecycle as every other task in
// this engine, with monotonically non-decreasing completion_percentage at
// stage boundaries.
package enrichtask

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/llm"
)

// CallbackEmitter is the outbound half of every task's lifecycle: each
// stage boundary and the terminal outcome are reported this way.
type CallbackEmitter interface {
	Emit(ctx context.Context, event enrichment.CallbackEvent) error
}

// ContentGenerator is the one llm.Client capability both pipelines need.
// Declared as an interface (rather than depending on *llm.Client
// directly) so tests can substitute a fake without constructing a real
// provider-backed client. *llm.Client satisfies this as-is.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, req llm.ContentRequest) (llm.Response, error)
}

// ResultStore persists the terminal callback payload (spec §4.8); matches
// internal/resultstore.Store's write-path signature.
type ResultStore interface {
	Store(ctx context.Context, accountID, leadID, jobID, enrichmentType string, event enrichment.CallbackEvent) error
}

// WebProfileFetcher fetches a company's public web profile (homepage,
// about page) as raw text/markdown for structured extraction.
type WebProfileFetcher interface {
	FetchProfile(ctx context.Context, websiteURL string) (string, error)
}

// TechnographicFetcher queries a third-party technographic API (e.g.
// pkg/builtwith) for a website's detected technology stack.
type TechnographicFetcher interface {
	FetchTechStack(ctx context.Context, websiteURL string) ([]string, error)
}

// WebsiteTechParser is the fallback technographic source when
// TechnographicFetcher errs: a best-effort parse of the fetched profile
// markup for recognizable technology signals (script tags, meta
// generators, CDN fingerprints).
type WebsiteTechParser interface {
	ParseTechStack(ctx context.Context, profile string) ([]string, error)
}

// LinkedInDiscoverer finds and validates a company's LinkedIn company
// page URL from its name and website.
type LinkedInDiscoverer interface {
	DiscoverAndValidate(ctx context.Context, companyName, websiteURL string) (string, error)
}

// AccountEnhancementTask is one account-enhancement run.
type AccountEnhancementTask struct {
	JobID       string
	TenantID    string
	AccountID   string
	CompanyName string
	WebsiteURL  string
}

// AccountInfo is the typed output of one account-enhancement run.
type AccountInfo struct {
	AccountID        string          `json:"account_id"`
	CompanyName      string          `json:"company_name"`
	Summary          string          `json:"summary"`
	Analysis         string          `json:"analysis"`
	TechStack        []string        `json:"tech_stack,omitempty"`
	TechStackSource  string          `json:"tech_stack_source,omitempty"`
	Customers        []string        `json:"customers,omitempty"`
	LinkedInURL      string          `json:"linkedin_url,omitempty"`
	RawProfile       string          `json:"raw_profile,omitempty"`
	GeneratedAt      time.Time       `json:"generated_at"`
	StructuredFields json.RawMessage `json:"structured_fields,omitempty"`
}

// structuredProfile is the shape requested from the LLM's structured
// extraction stage.
type structuredProfile struct {
	Summary   string   `json:"summary"`
	Customers []string `json:"customers"`
	Fields    map[string]any `json:"fields"`
}

// LinkedInActivityTask is one LinkedIn-activity-enrichment run: three raw
// HTML payloads for a single lead's posts, comments, and reactions.
type LinkedInActivityTask struct {
	JobID        string
	TenantID     string
	LeadID       string
	PostsHTML    string
	CommentsHTML string
	ReactionsHTML string
}

// RawActivity is one parsed-but-not-yet-LLM-enriched activity item.
type RawActivity struct {
	Kind string // "post", "comment", or "reaction"
	Text string
	URL  string
}

// HTMLActivityParser turns the three raw HTML payloads into RawActivity
// records.
type HTMLActivityParser interface {
	ParsePosts(html string) ([]RawActivity, error)
	ParseComments(html string) ([]RawActivity, error)
	ParseReactions(html string) ([]RawActivity, error)
}

// EnrichedActivity is one activity after LLM extraction.
type EnrichedActivity struct {
	Kind              string    `json:"kind"`
	PublishDate       time.Time `json:"publish_date"`
	Summary           string    `json:"summary"`
	Category          string    `json:"category"`
	CompanyFocus      string    `json:"company_focus,omitempty"`
	MentionedPeople   []string  `json:"mentioned_people,omitempty"`
	MentionedProducts []string  `json:"mentioned_products,omitempty"`
}

// enrichedActivityLLM is the JSON shape requested from the LLM per
// activity; PublishDate stays a string here since the model emits
// free-form dates that parseActivityDate parses leniently.
type enrichedActivityLLM struct {
	PublishDate       string   `json:"publish_date"`
	Summary           string   `json:"summary"`
	Category          string   `json:"category"`
	CompanyFocus      string   `json:"company_focus"`
	MentionedPeople   []string `json:"mentioned_people"`
	MentionedProducts []string `json:"mentioned_products"`
}

// Insights is the final per-lead synthesis over the surviving activities.
type Insights struct {
	Personality             string   `json:"personality"`
	AreasOfInterest         []string `json:"areas_of_interest"`
	EngagedColleagues       []string `json:"engaged_colleagues"`
	EngagedProducts         []string `json:"engaged_products"`
	OutreachRecommendation  string   `json:"outreach_recommendation"`
	PersonalizationSignals  []string `json:"personalization_signals"`
}

// activityMaxAgeMonths is the recency cutoff in months (spec §4.10):
// activities older than this are dropped before insight generation.
const activityMaxAgeMonths = 15
