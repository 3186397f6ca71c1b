package llmgateway

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider invokes Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Provider backed by the Gemini API.
func NewGeminiProvider(client *genai.Client, model string) *GeminiProvider {
	return &GeminiProvider{client: client, model: model}
}

// Invoke implements Provider.
func (p *GeminiProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, nil)
	if err != nil {
		return "", fmt.Errorf("gemini invoke: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini invoke: empty response")
	}
	return text, nil
}
