package domain

// VectorConfig holds internal vectorization settings, not exposed to clients.
// Dimensions and Model form the embedding identity of the index: vectors from
// any other model/dimensionality are rejected instead of silently compared.
type VectorConfig struct {
	Model          string
	Dimensions     int
	DistanceMetric string
	MaxInputChars  int
}

// DefaultVectorConfig returns the default configuration tuned for text-embedding-3-small.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:          "text-embedding-3-small",
		Dimensions:     1536,
		DistanceMetric: "cosine",
		MaxInputChars:  8000,
	}
}
