package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockProvider invokes models hosted on Amazon Bedrock.
type BedrockProvider struct {
	client    *bedrockruntime.Client
	modelID   string
	maxTokens int
}

// NewBedrockProvider creates a Provider backed by Amazon Bedrock.
func NewBedrockProvider(client *bedrockruntime.Client, modelID string, maxTokens int) *BedrockProvider {
	return &BedrockProvider{client: client, modelID: modelID, maxTokens: maxTokens}
}

type bedrockAnthropicRequest struct {
	AnthropicVersion string                   `json:"anthropic_version"`
	MaxTokens        int                      `json:"max_tokens"`
	Messages         []bedrockAnthropicMessage `json:"messages"`
}

type bedrockAnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Invoke implements Provider.
func (p *BedrockProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(bedrockAnthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        p.maxTokens,
		Messages:         []bedrockAnthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("bedrock marshal request: %w", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke: %w", err)
	}

	var resp bedrockAnthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("bedrock decode response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("bedrock invoke: empty response")
	}
	return resp.Content[0].Text, nil
}
