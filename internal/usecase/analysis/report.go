// Package analysis audits contract text for legal risks: retrieval-augmented
// prompting, an LLM call, and a best-effort parse of the model's JSON reply.
package analysis

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Risk is one identified contract risk.
type Risk struct {
	Type              string  `json:"type"`
	Severity          flexInt `json:"severity"`
	Location          string  `json:"location"`
	Explanation       string  `json:"explanation"`
	SuggestedFix      string  `json:"suggested_fix"`
	RewriteSuggestion string  `json:"rewrite_suggestion,omitempty"`
}

// Report is the structured analysis of one contract.
type Report struct {
	Summary          string   `json:"summary"`
	OverallRiskScore flexInt  `json:"overall_risk_score"`
	Risks            []Risk   `json:"risks"`
	MissingClauses   []string `json:"missing_clauses,omitempty"`
	KeyDates         []string `json:"key_dates,omitempty"`

	// Raw carries the unparsed model output when parsing failed; Degraded
	// marks a heuristic report produced without the LLM.
	Raw      string `json:"raw_response,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// RiskTypes returns the distinct risk type labels in report order.
func (r *Report) RiskTypes() []string {
	seen := make(map[string]struct{}, len(r.Risks))
	types := make([]string, 0, len(r.Risks))
	for _, risk := range r.Risks {
		if _, dup := seen[risk.Type]; dup {
			continue
		}
		seen[risk.Type] = struct{}{}
		types = append(types, risk.Type)
	}
	return types
}

// flexInt decodes a JSON number or a numeric string. Models do not reliably
// honor "integer" in the output schema.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

func (f flexInt) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(f))), nil
}
