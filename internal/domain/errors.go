package domain

import "errors"

var (
	// ErrRecordNotFound signals a missing corpus record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrCorpusUnknown signals an unrecognized corpus discriminator.
	ErrCorpusUnknown = errors.New("unknown corpus")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrModelMismatch signals an embedding produced by a different model than the index expects.
	ErrModelMismatch = errors.New("embedding model mismatch")
	// ErrInvalidMetadata signals malformed record metadata.
	ErrInvalidMetadata = errors.New("invalid metadata")
	// ErrInvalidInput signals a malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmbeddingProviderError signals an embedding provider failure after retries.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLLMProviderError signals a language model provider failure.
	ErrLLMProviderError = errors.New("llm provider error")
	// ErrAnalysisUnparsed signals that the model response could not be parsed as JSON.
	ErrAnalysisUnparsed = errors.New("analysis response not parseable")
)
