package customcolumn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/llm"
)

func TestResponseFormatGuidance(t *testing.T) {
	enumCol := enrichment.Column{ResponseType: enrichment.ResponseEnum, ResponseConfig: enrichment.ResponseConfig{AllowedValues: []string{"a", "b"}}}
	assert.Contains(t, responseFormatGuidance(enumCol), "a, b")

	boolCol := enrichment.Column{ResponseType: enrichment.ResponseBoolean}
	assert.Equal(t, "a JSON boolean (true or false)", responseFormatGuidance(boolCol))
}

func TestBuildSystemPrompt_ModesDiffer(t *testing.T) {
	col := enrichment.Column{ResponseType: enrichment.ResponseString}

	structured := buildSystemPrompt(col, true, false)
	assert.Contains(t, structured, "analysis, rationale, value, confidence_score")
	assert.Contains(t, structured, "web search results")

	unstructured := buildSystemPrompt(col, false, true)
	assert.Contains(t, unstructured, "Rationale:")
	assert.Contains(t, unstructured, "Do not claim to have searched")
}

func TestBuildUserPrompt_IncludesContextAndActivity(t *testing.T) {
	col := enrichment.Column{
		Question:       "Does this company use Kubernetes?",
		ResponseType:   enrichment.ResponseEnum,
		ResponseConfig: enrichment.ResponseConfig{AllowedValues: []string{"yes", "no"}},
	}
	ec := EntityContext{EntityID: "acc-1", Data: map[string]any{"name": "Acme"}}
	activity := []map[string]any{{"text": "hiring SREs"}}

	prompt := buildUserPrompt(col, ec, activity)
	assert.Contains(t, prompt, "Acme")
	assert.Contains(t, prompt, "Recent LinkedIn activity")
	assert.Contains(t, prompt, "hiring SREs")
	assert.Contains(t, prompt, "Does this company use Kubernetes?")
	assert.Contains(t, prompt, "Allowed values: yes, no")
}

func TestParseUnstructuredAnswer_SplitsRationaleAndSources(t *testing.T) {
	text := "Yes, they use Kubernetes.\n\nRationale: job postings mention EKS. High confidence.\n\nSources: careers page"
	parsed := parseUnstructuredAnswer(text)
	assert.Equal(t, "Yes, they use Kubernetes.", parsed.Answer)
	assert.Contains(t, parsed.Rationale, "job postings mention EKS")
	assert.Equal(t, "careers page", parsed.Sources)
	assert.Equal(t, 0.9, parsed.Confidence)
}

func TestParseUnstructuredAnswer_DefaultsWhenNoMarkers(t *testing.T) {
	parsed := parseUnstructuredAnswer("just an answer")
	assert.Equal(t, "just an answer", parsed.Answer)
	assert.Equal(t, "", parsed.Rationale)
	assert.Equal(t, 0.5, parsed.Confidence)
}

func TestParseStructuredAnswer_DirectShape(t *testing.T) {
	resp := llm.Response{Value: json.RawMessage(`{"analysis":"a","rationale":"r","value":"v","confidence_score":0.7}`)}
	ans, err := parseStructuredAnswer(resp)
	require.NoError(t, err)
	assert.Equal(t, "r", ans.Rationale)
	assert.Equal(t, 0.7, ans.ConfidenceScore)
	var v string
	require.NoError(t, json.Unmarshal(ans.Value, &v))
	assert.Equal(t, "v", v)
}

func TestParseStructuredAnswer_UnwrapsResponseWrapper(t *testing.T) {
	resp := llm.Response{Value: json.RawMessage(`{"response":{"analysis":"a","rationale":"r","value":42,"confidence_score":0.4}}`)}
	ans, err := parseStructuredAnswer(resp)
	require.NoError(t, err)
	assert.Equal(t, "r", ans.Rationale)
	var n float64
	require.NoError(t, json.Unmarshal(ans.Value, &n))
	assert.Equal(t, float64(42), n)
}

func TestParseStructuredAnswer_EmptyIsError(t *testing.T) {
	_, err := parseStructuredAnswer(llm.Response{})
	assert.Error(t, err)
}

func TestCoerceValue_String(t *testing.T) {
	v, err := coerceValue(enrichment.ResponseString, enrichment.ResponseConfig{}, json.RawMessage(`"hello"`), "fallback", false)
	require.NoError(t, err)
	require.NotNil(t, v.String)
	assert.Equal(t, "hello", *v.String)
}

func TestCoerceValue_BooleanFromStringForm(t *testing.T) {
	v, err := coerceValue(enrichment.ResponseBoolean, enrichment.ResponseConfig{}, json.RawMessage(`"yes"`), "", false)
	require.NoError(t, err)
	require.NotNil(t, v.Boolean)
	assert.True(t, *v.Boolean)
}

func TestCoerceValue_BooleanInvalid(t *testing.T) {
	_, err := coerceValue(enrichment.ResponseBoolean, enrichment.ResponseConfig{}, json.RawMessage(`"maybe"`), "", false)
	assert.Error(t, err)
}

func TestCoerceValue_Number(t *testing.T) {
	v, err := coerceValue(enrichment.ResponseNumber, enrichment.ResponseConfig{}, json.RawMessage(`"42.5"`), "", false)
	require.NoError(t, err)
	require.NotNil(t, v.Number)
	assert.Equal(t, 42.5, *v.Number)
}

func TestCoerceValue_JSONObjectPassthrough(t *testing.T) {
	v, err := coerceValue(enrichment.ResponseJSONObject, enrichment.ResponseConfig{}, json.RawMessage(`{"a":1}`), "", false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(v.JSON))
}

func TestCoerceValue_JSONObjectRepairsFencedString(t *testing.T) {
	raw, err := json.Marshal("```json\n{\"a\":1}\n```")
	require.NoError(t, err)
	v, err := coerceValue(enrichment.ResponseJSONObject, enrichment.ResponseConfig{}, raw, "", false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(v.JSON))
}

func TestCoerceValue_EnumCaseInsensitiveMatch(t *testing.T) {
	cfg := enrichment.ResponseConfig{AllowedValues: []string{"Enterprise", "SMB"}}
	v, err := coerceValue(enrichment.ResponseEnum, cfg, json.RawMessage(`"enterprise"`), "", false)
	require.NoError(t, err)
	require.NotNil(t, v.Enum)
	assert.Equal(t, "Enterprise", *v.Enum)
	assert.Empty(t, v.Warning)
}

func TestCoerceValue_EnumUnmatched_StructuredModeKeepsRawWithWarning(t *testing.T) {
	cfg := enrichment.ResponseConfig{AllowedValues: []string{"Enterprise", "SMB"}}
	v, err := coerceValue(enrichment.ResponseEnum, cfg, json.RawMessage(`"Startup"`), "", false)
	require.NoError(t, err)
	require.NotNil(t, v.Enum)
	assert.Equal(t, "Startup", *v.Enum)
	assert.NotEmpty(t, v.Warning)
}

func TestCoerceValue_EnumUnmatched_UnstructuredModeFallsBackToFirstAllowed(t *testing.T) {
	cfg := enrichment.ResponseConfig{AllowedValues: []string{"Enterprise", "SMB"}}
	v, err := coerceValue(enrichment.ResponseEnum, cfg, json.RawMessage(`""`), "Startup", true)
	require.NoError(t, err)
	require.NotNil(t, v.Enum)
	assert.Equal(t, "Enterprise", *v.Enum)
	assert.NotEmpty(t, v.Warning)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, clampConfidence(-1))
	assert.Equal(t, 1.0, clampConfidence(2))
	assert.Equal(t, 0.5, clampConfidence(0.5))
}

func TestModelAllowList_EmptyModelAlwaysAllowed(t *testing.T) {
	allow := ModelAllowList{"claude-3-opus": "anthropic"}
	_, ok := allow.Provider("")
	assert.True(t, ok)

	p, ok := allow.Provider("claude-3-opus")
	assert.True(t, ok)
	assert.Equal(t, "anthropic", p)

	_, ok = allow.Provider("unknown-model")
	assert.False(t, ok)
}
