package embedding

import (
	"context"
	"math"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/kailas-cloud/ctxdex/internal/domain"
)

// Hash embedder identity as reported in usage records.
const (
	HashDimensions = 384
	HashProvider   = "local"
	HashModel      = "hash-384"
)

// HashEmbedder is the offline fallback: a deterministic character-hash vector.
// It carries no semantics and only keeps the fusion pipeline running without a provider.
type HashEmbedder struct{}

// Embed folds every UTF-16 code unit c into acc[c mod 384] += (c mod 13) - 6 and L2-normalizes.
func (HashEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	tokens := EstimateTokens(text)
	return domain.EmbeddingResult{
		Embedding:    HashVector(text),
		Model:        HashModel,
		Provider:     HashProvider,
		PromptTokens: tokens,
		TotalTokens:  tokens,
		Fallback:     true,
	}, nil
}

// HashVector returns the normalized 384-dim hash vector of text.
func HashVector(text string) []float32 {
	acc := make([]float64, HashDimensions)
	for _, c := range utf16.Encode([]rune(text)) {
		code := int(c)
		acc[code%HashDimensions] += float64(code%13 - 6)
	}

	var sum float64
	for _, v := range acc {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}

	out := make([]float32, HashDimensions)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}

// EstimateTokens approximates provider tokenization at four characters per token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
