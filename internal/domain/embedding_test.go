package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	got    string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.got = text
	return s.result, s.err
}

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	emb := NewInstructionEmbedder(inner, "query: ")

	result, err := emb.Embed(context.Background(), "coffee near the river")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "query: coffee near the river" {
		t.Errorf("expected prepended text, got %q", inner.got)
	}
	if result.Dimension() != 3 {
		t.Errorf("expected 3-element vector, got %d", result.Dimension())
	}
}

func TestInstructionEmbedder_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	emb := NewInstructionEmbedder(&stubEmbedder{err: innerErr}, "query: ")

	if _, err := emb.Embed(context.Background(), "hello"); !errors.Is(err, innerErr) {
		t.Errorf("expected inner error, got %v", err)
	}
}

func TestEmbeddingUsage_Add(t *testing.T) {
	ctx, u := NewContextWithUsage(context.Background())

	UsageFromContext(ctx).Add(EmbeddingResult{TotalTokens: 7, Provider: "openai", Model: "m"})
	UsageFromContext(ctx).Add(EmbeddingResult{TotalTokens: 3, Provider: "local", Model: "hash-384", Fallback: true})

	if !u.Used {
		t.Fatal("expected Used=true")
	}
	if u.TotalTokens != 10 {
		t.Errorf("expected 10 tokens, got %d", u.TotalTokens)
	}
	if u.Provider != "local" || !u.Fallback {
		t.Errorf("expected last provider local with fallback, got %q %v", u.Provider, u.Fallback)
	}
}

func TestEmbeddingUsage_NilSafe(t *testing.T) {
	UsageFromContext(context.Background()).Add(EmbeddingResult{TotalTokens: 1})
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(errors.Join(errors.New("x"), ErrInvalidCoordinates)) {
		t.Error("expected coordinates error to be a validation error")
	}
	if IsValidation(ErrEmbeddingProviderError) {
		t.Error("provider error is not a validation error")
	}
}
