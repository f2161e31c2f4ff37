package ctxdex

import "context"

// Embedder converts text to vector embeddings.
// Vectors of any length are accepted; they are resized to the client dimensions.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	Model        string
	PromptTokens int
	TotalTokens  int
}
