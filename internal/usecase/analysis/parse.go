package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kindred-ai/matchengine/internal/domain"
)

// parseReport extracts a Report from raw model output. Markdown code fences
// are stripped first; if the remainder is not valid JSON, the outermost
// brace-delimited object is tried. On total failure the raw text is preserved
// in the returned Report and ErrAnalysisUnparsed is wrapped.
func parseReport(raw string) (Report, error) {
	text := stripFences(strings.TrimSpace(raw))

	var rep Report
	if err := json.Unmarshal([]byte(text), &rep); err == nil {
		clampScores(&rep)
		return rep, nil
	}

	if obj := extractObject(text); obj != "" {
		if err := json.Unmarshal([]byte(obj), &rep); err == nil {
			clampScores(&rep)
			return rep, nil
		}
	}

	return Report{Raw: raw}, fmt.Errorf("model output is not JSON: %w", domain.ErrAnalysisUnparsed)
}

// stripFences removes a surrounding ```json ... ``` (or plain ```) block.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// extractObject returns the span from the first '{' to the last '}', the
// widest candidate object in prose-wrapped output.
func extractObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// clampScores bounds model-supplied scores: severity to [1,10], overall risk
// to [1,100]. Out-of-range values are clamped, not rejected.
func clampScores(rep *Report) {
	rep.OverallRiskScore = clamp(rep.OverallRiskScore, 1, 100)
	for i := range rep.Risks {
		rep.Risks[i].Severity = clamp(rep.Risks[i].Severity, 1, 10)
	}
}

func clamp(v flexInt, lo, hi flexInt) flexInt {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
