// Package ollama provides a local-model embedding provider backed by
// Ollama's HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/documently/docuflow/engine/embedding"
)

// EmbedClient implements embedding.Provider using Ollama's HTTP API.
type EmbedClient struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// NewEmbedClient creates an Ollama embedding client.
func NewEmbedClient(baseURL, model string, dimensions int) *EmbedClient {
	return &EmbedClient{
		baseURL: baseURL,
		model:   model,
		dim:     dimensions,
		client:  &http.Client{},
	}
}

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

func (c *EmbedClient) embed(ctx context.Context, text string) (embedding.Vector, error) {
	body, _ := json.Marshal(ollamaEmbedReq{Model: c.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	var result ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}

	out := make(embedding.Vector, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// EmbedText implements embedding.Provider.
func (c *EmbedClient) EmbedText(ctx context.Context, text string) (embedding.Vector, error) {
	return c.embed(ctx, text)
}

// EmbedTexts implements embedding.Provider. Ollama has no native batch
// endpoint, so each text is embedded with its own request.
func (c *EmbedClient) EmbedTexts(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(texts))
	for i, text := range texts {
		v, err := c.embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions implements embedding.Provider.
func (c *EmbedClient) Dimensions() int { return c.dim }
