package customcolumn

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/sells-group/enrichment-engine/internal/llm"
)

// structuredAnswer is the JSON shape requested in structured mode
// (rule 2c): {analysis, rationale, value, confidence_score}.
type structuredAnswer struct {
	Analysis        string          `json:"analysis"`
	Rationale       string          `json:"rationale"`
	Value           json.RawMessage `json:"value"`
	ConfidenceScore float64         `json:"confidence_score"`
}

// jqUnwrapPaths are tried in order against a structurally valid object
// that does not match structuredAnswer directly — some providers nest
// the answer under a wrapper key (e.g. {"response": {...}} or
// {"output": {"value": ...}}). Each is a jq filter; the first whose
// non-null result decodes to an answer carrying a value or a rationale
// wins.
var jqUnwrapPaths = []string{
	".",
	".response",
	".output",
	".result",
	".data",
}

// parseStructuredAnswer decodes resp.Value into a structuredAnswer,
// trying each unwrap path when the top-level object doesn't already
// carry a `value` key (spec §4.3 rule 7 already extracted *a* JSON
// object; this handles provider-specific nesting around it).
func parseStructuredAnswer(resp llm.Response) (structuredAnswer, error) {
	if len(resp.Value) == 0 {
		return structuredAnswer{}, fmt.Errorf("customcolumn: empty structured response")
	}

	var raw any
	if err := json.Unmarshal(resp.Value, &raw); err != nil {
		return structuredAnswer{}, fmt.Errorf("customcolumn: unmarshal response: %w", err)
	}

	for _, path := range jqUnwrapPaths {
		candidate, ok := runJQUnwrap(path, raw)
		if !ok {
			continue
		}
		b, err := json.Marshal(candidate)
		if err != nil {
			continue
		}
		var ans structuredAnswer
		if err := json.Unmarshal(b, &ans); err == nil && (len(ans.Value) > 0 || ans.Rationale != "") {
			return ans, nil
		}
	}
	return structuredAnswer{}, fmt.Errorf("customcolumn: response did not contain a value/rationale field after unwrap attempts")
}

// runJQUnwrap evaluates the jq filter path against input, returning the
// first emitted value. ok is false on a compile error, a jq-level error
// result, or no output.
func runJQUnwrap(path string, input any) (any, bool) {
	query, err := gojq.Parse(path)
	if err != nil {
		return nil, false
	}
	iter := query.Run(input)
	v, hasNext := iter.Next()
	if !hasNext {
		return nil, false
	}
	if err, ok := v.(error); ok {
		_ = err
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

// coerceValue implements rule 2e: validate and coerce a decoded value
// against responseType, returning the typed CustomColumnValue fields to
// set (exactly one is populated on success).
func coerceValue(responseType enrichment.ResponseType, cfg enrichment.ResponseConfig, raw json.RawMessage, unstructuredFallback string, unstructuredMode bool) (CustomColumnValue, error) {
	switch responseType {
	case enrichment.ResponseString:
		s, err := coerceString(raw, unstructuredFallback)
		if err != nil {
			return CustomColumnValue{}, err
		}
		return CustomColumnValue{String: &s}, nil

	case enrichment.ResponseJSONObject:
		obj, err := coerceJSONObject(raw, unstructuredFallback)
		if err != nil {
			return CustomColumnValue{}, err
		}
		return CustomColumnValue{JSON: obj}, nil

	case enrichment.ResponseBoolean:
		b, err := coerceBoolean(raw, unstructuredFallback)
		if err != nil {
			return CustomColumnValue{}, err
		}
		return CustomColumnValue{Boolean: &b}, nil

	case enrichment.ResponseNumber:
		n, err := coerceNumber(raw, unstructuredFallback)
		if err != nil {
			return CustomColumnValue{}, err
		}
		return CustomColumnValue{Number: &n}, nil

	case enrichment.ResponseEnum:
		e, warning := coerceEnum(cfg, raw, unstructuredFallback, unstructuredMode)
		return CustomColumnValue{Enum: &e, Warning: warning}, nil

	default:
		return CustomColumnValue{}, fmt.Errorf("customcolumn: unknown response_type %q", responseType)
	}
}

// CustomColumnValue is the pre-assembly coercion result; Runner copies
// exactly the populated field onto enrichment.CustomColumnValue.
type CustomColumnValue struct {
	String  *string
	JSON    json.RawMessage
	Boolean *bool
	Number  *float64
	Enum    *string
	Warning string
}

func rawAsString(raw json.RawMessage, fallback string) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	if len(raw) > 0 {
		return strings.Trim(string(raw), `"`)
	}
	return fallback
}

func coerceString(raw json.RawMessage, fallback string) (string, error) {
	return rawAsString(raw, fallback), nil
}

func coerceJSONObject(raw json.RawMessage, fallback string) (json.RawMessage, error) {
	var v any
	if len(raw) > 0 && json.Unmarshal(raw, &v) == nil {
		switch v.(type) {
		case map[string]any, []any:
			return raw, nil
		}
	}
	// raw is a JSON string (or absent); attempt repair on the string form.
	candidate := rawAsString(raw, fallback)
	repaired, extractionFailed := llm.ExtractJSON(candidate)
	if extractionFailed {
		return nil, fmt.Errorf("customcolumn: json_object value could not be repaired: %q", candidate)
	}
	return repaired, nil
}

func coerceBoolean(raw json.RawMessage, fallback string) (bool, error) {
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b, nil
	}
	s := strings.ToLower(strings.TrimSpace(rawAsString(raw, fallback)))
	switch s {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("customcolumn: cannot parse %q as boolean", s)
}

func coerceNumber(raw json.RawMessage, fallback string) (float64, error) {
	var n float64
	if json.Unmarshal(raw, &n) == nil {
		return n, nil
	}
	s := strings.TrimSpace(rawAsString(raw, fallback))
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("customcolumn: cannot parse %q as number", s)
	}
	return n, nil
}

// coerceEnum implements rule 2e's enum branch: case-insensitive match
// against allowed_values when declared. An unmatched value falls back to
// the raw value with a warning in structured mode, or to the first
// allowed value in unstructured mode (rule 2e).
func coerceEnum(cfg enrichment.ResponseConfig, raw json.RawMessage, fallback string, unstructuredMode bool) (value, warning string) {
	candidate := rawAsString(raw, fallback)
	if len(cfg.AllowedValues) == 0 {
		return candidate, ""
	}
	for _, allowed := range cfg.AllowedValues {
		if strings.EqualFold(allowed, candidate) {
			return allowed, ""
		}
	}
	if unstructuredMode {
		return cfg.AllowedValues[0], fmt.Sprintf("value %q did not match any allowed_values; used first allowed value", candidate)
	}
	return candidate, fmt.Sprintf("value %q did not match any allowed_values", candidate)
}

// clampConfidence implements rule 2f.
func clampConfidence(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
