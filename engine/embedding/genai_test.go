package embedding

import (
	"context"
	"testing"
)

func TestGenAIProviderEmbedTextsEmptyInputSkipsClient(t *testing.T) {
	// A nil client is safe here because EmbedTexts must return before
	// ever dereferencing it for an empty input.
	p := &GenAIProvider{dim: 768}
	vecs, err := p.EmbedTexts(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 0 {
		t.Fatalf("expected empty result, got %d", len(vecs))
	}
}

func TestGenAIProviderDimensions(t *testing.T) {
	p := &GenAIProvider{dim: 1536}
	if p.Dimensions() != 1536 {
		t.Fatalf("expected 1536, got %d", p.Dimensions())
	}
}
