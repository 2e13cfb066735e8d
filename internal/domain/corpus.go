package domain

// Corpus discriminates the record collections the engine serves. Every query
// and record is scoped to exactly one corpus; similarity never crosses the
// boundary.
type Corpus string

const (
	// CorpusBreeds holds dog breed profiles for companion matching.
	CorpusBreeds Corpus = "breeds"
	// CorpusRiskDefinitions holds the contract risk taxonomy.
	CorpusRiskDefinitions Corpus = "risk_definitions"
	// CorpusContractExamples holds summaries of past contract analyses.
	CorpusContractExamples Corpus = "contract_examples"
)

// IsValid reports whether the corpus is one of the known collections.
func (c Corpus) IsValid() bool {
	switch c {
	case CorpusBreeds, CorpusRiskDefinitions, CorpusContractExamples:
		return true
	}
	return false
}

// ParseCorpus converts a wire string into a Corpus, rejecting unknown values.
func ParseCorpus(s string) (Corpus, error) {
	c := Corpus(s)
	if !c.IsValid() {
		return "", ErrCorpusUnknown
	}
	return c, nil
}
