package customcolumn

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/llm"
)

// responseFormatGuidance describes, per response_type, the shape the
// value field must take in structured mode (rule 2c).
func responseFormatGuidance(col enrichment.Column) string {
	switch col.ResponseType {
	case enrichment.ResponseBoolean:
		return "a JSON boolean (true or false)"
	case enrichment.ResponseNumber:
		return "a JSON number"
	case enrichment.ResponseJSONObject:
		return "a JSON object or array capturing the structured answer"
	case enrichment.ResponseEnum:
		if len(col.ResponseConfig.AllowedValues) > 0 {
			return fmt.Sprintf("exactly one of: %s", strings.Join(col.ResponseConfig.AllowedValues, ", "))
		}
		return "a short enumerated label"
	default:
		return "a plain string"
	}
}

// buildSystemPrompt renders the system prompt for either mode (JSON
// answer or markdown answer): instructions, output-shape guidance, and
// web-search policy.
func buildSystemPrompt(col enrichment.Column, useInternet, unstructured bool) string {
	var b strings.Builder
	b.WriteString("You are answering one custom research question about a single entity.\n")
	if unstructured {
		b.WriteString("Respond in markdown: an answer, then a \"Rationale:\" section, then an optional \"Sources:\" section.\n")
		b.WriteString("State your confidence using the phrase \"high confidence\", \"medium confidence\", or \"low confidence\" in the rationale.\n")
	} else {
		b.WriteString("Respond with a single JSON object with exactly these keys: analysis, rationale, value, confidence_score.\n")
		b.WriteString("`value` must be " + responseFormatGuidance(col) + ".\n")
		b.WriteString("`confidence_score` is a number between 0 and 1.\n")
	}
	if useInternet {
		b.WriteString("You may use web search results to ground your answer; cite sources when you do.\n")
	} else {
		b.WriteString("Do not claim to have searched the web or fabricate sources; answer from the given context only.\n")
	}
	return b.String()
}

// buildUserPrompt renders the user prompt: entity context, the column's
// question/description, response-format constraints, examples, and
// validation rules (rule 2c).
func buildUserPrompt(col enrichment.Column, ec EntityContext, activity []map[string]any) string {
	var b strings.Builder
	b.WriteString("Entity context:\n")
	b.WriteString(renderContext(ec.Data))
	if len(activity) > 0 {
		b.WriteString("\nRecent LinkedIn activity:\n")
		b.WriteString(renderContext(map[string]any{"activity": activity}))
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(col.Question)
	if col.Description != "" {
		b.WriteString("\nContext on this column: ")
		b.WriteString(col.Description)
	}
	if len(col.ResponseConfig.Examples) > 0 {
		b.WriteString("\nExamples of good answers:\n- ")
		b.WriteString(strings.Join(col.ResponseConfig.Examples, "\n- "))
	}
	if len(col.ResponseConfig.ValidationRules) > 0 {
		b.WriteString("\nValidation rules:\n- ")
		b.WriteString(strings.Join(col.ResponseConfig.ValidationRules, "\n- "))
	}
	if col.ResponseType == enrichment.ResponseEnum && len(col.ResponseConfig.AllowedValues) > 0 {
		b.WriteString("\nAllowed values: ")
		b.WriteString(strings.Join(col.ResponseConfig.AllowedValues, ", "))
	}
	return b.String()
}

func renderContext(data map[string]any) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(b)
}

// composePrompt builds the llm.Prompt for one entity in either mode.
func composePrompt(col enrichment.Column, ec EntityContext, activity []map[string]any, useInternet, unstructured bool) llm.Prompt {
	return llm.Prompt{
		System: buildSystemPrompt(col, useInternet, unstructured),
		User:   buildUserPrompt(col, ec, activity),
	}
}
