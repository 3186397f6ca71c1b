package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIProvider implements Provider against Google's Gemini embedding API,
// used when EMBEDDING_PROVIDER=api-provider.
type GenAIProvider struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGenAIProvider creates a Gemini-backed embedding provider.
func NewGenAIProvider(ctx context.Context, apiKey, model string, dimensions int) (*GenAIProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GenAIProvider{client: client, model: model, dim: dimensions}, nil
}

// EmbedText implements Provider.
func (p *GenAIProvider) EmbedText(ctx context.Context, text string) (Vector, error) {
	vecs, err := p.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts implements Provider.
func (p *GenAIProvider) EmbedTexts(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return []Vector{}, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai embed: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	out := make([]Vector, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = Vector(e.Values)
	}
	return out, nil
}

// Dimensions implements Provider.
func (p *GenAIProvider) Dimensions() int { return p.dim }
