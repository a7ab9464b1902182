package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	v, failed := ExtractJSON(`{"value": "acme", "confidence_score": 0.9}`)
	assert.False(t, failed)
	assert.JSONEq(t, `{"value": "acme", "confidence_score": 0.9}`, string(v))
}

func TestExtractJSON_FencedBlock(t *testing.T) {
	text := "Sure, here you go:\n```json\n{\"value\": 42}\n```\nLet me know if you need anything else."
	v, failed := ExtractJSON(text)
	assert.False(t, failed)
	assert.JSONEq(t, `{"value": 42}`, string(v))
}

func TestExtractJSON_LeadingProse(t *testing.T) {
	text := `Based on my research, the answer is {"value": "yes", "confidence_score": 0.8}`
	v, failed := ExtractJSON(text)
	assert.False(t, failed)
	assert.JSONEq(t, `{"value": "yes", "confidence_score": 0.8}`, string(v))
}

func TestExtractJSON_TrailingComma(t *testing.T) {
	text := `{"value": "yes", "confidence_score": 0.8,}`
	v, failed := ExtractJSON(text)
	assert.False(t, failed)
	assert.JSONEq(t, `{"value": "yes", "confidence_score": 0.8}`, string(v))
}

func TestExtractJSON_NestedBraces(t *testing.T) {
	text := `{"value": {"nested": true}, "confidence_score": 1.0}`
	v, failed := ExtractJSON(text)
	assert.False(t, failed)
	assert.JSONEq(t, text, string(v))
}

func TestExtractJSON_TotalFailureReturnsEmptyObject(t *testing.T) {
	v, failed := ExtractJSON("I cannot answer that question.")
	assert.True(t, failed)
	assert.Equal(t, "{}", string(v))
}
