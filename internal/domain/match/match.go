// Package match defines the ranked output of the semantic match pipeline.
package match

// Result is one ranked match entry. Reasons are derived deterministically by
// the explainer; Rank is 1-based after re-ranking.
type Result struct {
	RecordID   string
	Similarity float64
	Reasons    []string
	Rank       int
}

// Set is the full pipeline output. When the embedding provider is unavailable
// the pipeline degrades: Results is empty, Degraded is true, and Message
// carries the human-readable status instead of an error.
type Set struct {
	Results  []Result
	Profile  string
	Degraded bool
	Message  string
}
