package customcolumn

import (
	"regexp"
	"strings"
)

// unstructuredAnswer is the heuristically parsed shape of an
// unstructured-mode reply (rule 2b): a free-form answer followed by
// Rationale:/Sources: sections, with confidence inferred from a
// "high|medium|low confidence" cue anywhere in the text.
type unstructuredAnswer struct {
	Answer     string
	Rationale  string
	Sources    string
	Confidence float64
}

var (
	rationaleHeaderRe = regexp.MustCompile(`(?im)^\s*rationale:\s*`)
	sourcesHeaderRe   = regexp.MustCompile(`(?im)^\s*sources:\s*`)
	confidenceCueRe   = regexp.MustCompile(`(?i)(high|medium|low)\s+confidence`)
)

// confidenceByCue maps the cue word to the numeric confidence rule 2b's
// "heuristically parseable" language leaves otherwise unspecified;
// these three buckets mirror the structured mode's clamp range.
var confidenceByCue = map[string]float64{
	"high":   0.9,
	"medium": 0.6,
	"low":    0.3,
}

// parseUnstructuredAnswer splits text on the Rationale:/Sources: markers
// and infers confidence from the first confidence cue found anywhere.
func parseUnstructuredAnswer(text string) unstructuredAnswer {
	out := unstructuredAnswer{Answer: strings.TrimSpace(text), Confidence: 0.5}

	if loc := rationaleHeaderRe.FindStringIndex(text); loc != nil {
		out.Answer = strings.TrimSpace(text[:loc[0]])
		rest := text[loc[1]:]
		if sLoc := sourcesHeaderRe.FindStringIndex(rest); sLoc != nil {
			out.Rationale = strings.TrimSpace(rest[:sLoc[0]])
			out.Sources = strings.TrimSpace(rest[sLoc[1]:])
		} else {
			out.Rationale = strings.TrimSpace(rest)
		}
	}

	if m := confidenceCueRe.FindStringSubmatch(text); m != nil {
		if score, ok := confidenceByCue[strings.ToLower(m[1])]; ok {
			out.Confidence = score
		}
	}
	return out
}
