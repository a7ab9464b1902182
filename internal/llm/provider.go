package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/pkg/anthropic"
	"github.com/sells-group/enrichment-engine/pkg/perplexity"
)

// rawResult is a provider's response before cache keying/JSON extraction
// is applied by Client.
type rawResult struct {
	text   string
	model  string
	usage  enrichment.TokenUsage
	search *SearchMetadata
}

// Provider is the low-level, provider-specific half of the capability
// set. Client composes a Provider with caching, retries, and fallback to
// implement the full spec §4.3 contract.
type Provider interface {
	Name() string
	// Complete runs a plain generation call against model (empty means
	// the provider's configured default).
	Complete(ctx context.Context, model string, prompt Prompt, isJSON bool, temperature *float64) (rawResult, error)
	// CompleteSearch runs a search-grounded generation call.
	CompleteSearch(ctx context.Context, model string, prompt Prompt, searchContextSize enrichment.SearchContextSize, temperature *float64) (rawResult, error)
	// SupportsNativeSearch reports whether the provider's models are
	// natively web-grounded (Perplexity's sonar family is; Anthropic's
	// Claude models are not and would need a tool-use search loop this
	// engine does not implement — see DESIGN.md).
	SupportsNativeSearch() bool
}

// AnthropicProvider wraps pkg/anthropic for plain generation and as the
// structured-output / Batch-API capable provider (spec §4.9's model
// allow-list routes custom-column jobs here by default).
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int64
}

// NewAnthropicProvider constructs an AnthropicProvider.
func NewAnthropicProvider(client anthropic.Client, defaultModel string, maxTokens int64) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicProvider{client: client, defaultModel: defaultModel, maxTokens: maxTokens}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) SupportsNativeSearch() bool { return false }

func (p *AnthropicProvider) Complete(ctx context.Context, model string, prompt Prompt, isJSON bool, temperature *float64) (rawResult, error) {
	if model == "" {
		model = p.defaultModel
	}
	req := anthropic.MessageRequest{
		Model:       model,
		MaxTokens:   p.maxTokens,
		Temperature: temperature,
		Messages:    []anthropic.Message{{Role: "user", Content: userContent(prompt, isJSON)}},
	}
	if prompt.System != "" {
		req.System = []anthropic.SystemBlock{{Text: prompt.System}}
	}

	resp, err := p.client.CreateMessage(ctx, req)
	if err != nil {
		return rawResult{}, eris.Wrap(err, "llm: anthropic complete")
	}
	return rawResult{
		text:  concatText(resp.Content),
		model: model,
		usage: toUsage("anthropic", model, resp.Usage),
	}, nil
}

func (p *AnthropicProvider) CompleteSearch(ctx context.Context, model string, prompt Prompt, searchContextSize enrichment.SearchContextSize, temperature *float64) (rawResult, error) {
	// Anthropic's Claude models are not natively web-grounded in this
	// engine's adapter; search-grounded calls always route to a
	// provider where SupportsNativeSearch() is true (see Client.pickSearchProvider).
	return rawResult{}, eris.New("llm: anthropic provider does not support native search")
}

func concatText(blocks []anthropic.ContentBlock) string {
	out := ""
	for _, b := range blocks {
		if b.Type == "text" || b.Type == "" {
			out += b.Text
		}
	}
	return out
}

func toUsage(provider, model string, u anthropic.TokenUsage) enrichment.TokenUsage {
	total := u.InputTokens + u.OutputTokens
	return enrichment.TokenUsage{
		PromptTokens:     int(u.InputTokens),
		CompletionTokens: int(u.OutputTokens),
		TotalTokens:      int(total),
		TotalCostUSD:     u.EstimateCost(model),
		Provider:         provider,
	}
}

func userContent(prompt Prompt, isJSON bool) string {
	text := prompt.User
	if text == "" {
		text = prompt.Text()
	}
	if isJSON {
		text += "\n\nRespond with a single JSON object only, no surrounding prose."
	}
	return text
}

// PerplexityProvider wraps pkg/perplexity. Perplexity's sonar/sonar-pro
// models are natively web-grounded, so this is the engine's default
// search-grounded provider (spec §4.3's "openai-like"/"gemini-like"
// pairing is realised here as "structured-output-capable" /
// "search-native").
type PerplexityProvider struct {
	client       perplexity.Client
	defaultModel string
}

// NewPerplexityProvider constructs a PerplexityProvider.
func NewPerplexityProvider(client perplexity.Client, defaultModel string) *PerplexityProvider {
	return &PerplexityProvider{client: client, defaultModel: defaultModel}
}

func (p *PerplexityProvider) Name() string { return "perplexity" }

func (p *PerplexityProvider) SupportsNativeSearch() bool { return true }

func (p *PerplexityProvider) Complete(ctx context.Context, model string, prompt Prompt, isJSON bool, temperature *float64) (rawResult, error) {
	return p.complete(ctx, model, prompt, isJSON, temperature, "")
}

func (p *PerplexityProvider) CompleteSearch(ctx context.Context, model string, prompt Prompt, searchContextSize enrichment.SearchContextSize, temperature *float64) (rawResult, error) {
	return p.complete(ctx, model, prompt, false, temperature, searchContextSize)
}

func (p *PerplexityProvider) complete(ctx context.Context, model string, prompt Prompt, isJSON bool, temperature *float64, searchContextSize enrichment.SearchContextSize) (rawResult, error) {
	if model == "" {
		model = p.defaultModel
	}
	messages := []perplexity.Message{}
	if prompt.System != "" {
		messages = append(messages, perplexity.Message{Role: "system", Content: prompt.System})
	}
	messages = append(messages, perplexity.Message{Role: "user", Content: userContent(prompt, isJSON)})

	req := perplexity.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	}
	if searchContextSize != "" {
		req.WebSearchOptions = &perplexity.WebSearchOptions{SearchContextSize: string(searchContextSize)}
	}

	resp, err := p.client.ChatCompletion(ctx, req)
	if err != nil {
		return rawResult{}, eris.Wrap(err, "llm: perplexity complete")
	}
	if len(resp.Choices) == 0 {
		return rawResult{}, eris.New("llm: perplexity returned no choices")
	}

	result := rawResult{
		text:  resp.Choices[0].Message.Content,
		model: model,
		usage: enrichment.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
			Provider:         "perplexity",
		},
	}
	if len(resp.SearchResults) > 0 {
		sources := make([]Source, 0, len(resp.SearchResults))
		for _, sr := range resp.SearchResults {
			sources = append(sources, Source{Title: sr.Title, URL: sr.URL, Snippet: sr.Snippet})
		}
		result.search = &SearchMetadata{Sources: sources, SourcesMarkdown: renderSourcesMarkdown(sources)}
	}
	return result, nil
}

func renderSourcesMarkdown(sources []Source) string {
	out := ""
	for _, s := range sources {
		out += "- [" + s.Title + "](" + s.URL + ")\n"
	}
	return out
}
