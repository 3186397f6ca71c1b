// Package llmgateway is a single entry point to multiple text-completion
// providers, selected by a closed set of model-name prefixes, with a
// robust JSON repair parser for structured responses.
package llmgateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/documently/docuflow/pkg/fn"
	"github.com/documently/docuflow/pkg/resilience"
)

// Provider is a single text-completion capability.
type Provider interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Gateway dispatches to a concrete Provider selected by model name.
type Gateway struct {
	providers map[string]Provider
	breakers  bool
}

var retryOpts = fn.RetryOpts{
	MaxAttempts: 2,
	InitialWait: time.Second,
	MaxWait:     10 * time.Second,
	Jitter:      true,
}

// New creates a Gateway over the given provider set, keyed by model-name
// prefix ("claude-", "bedrock/", "gemini-").
func New(providers map[string]Provider) *Gateway {
	return &Gateway{providers: providers, breakers: true}
}

func (g *Gateway) resolve(model string) (Provider, string, error) {
	for prefix, p := range g.providers {
		if strings.HasPrefix(model, prefix) {
			return p, prefix, nil
		}
	}
	return nil, "", fmt.Errorf("llmgateway: no provider registered for model %q", model)
}

var llmLimiterOpts = resilience.LimiterOpts{Rate: 3, Burst: 3}

// Invoke sends prompt to the provider selected by model, applying a
// per-provider token-bucket rate limit, retry, and circuit breaker.
func (g *Gateway) Invoke(ctx context.Context, model, prompt string) (string, error) {
	provider, prefix, err := g.resolve(model)
	if err != nil {
		return "", err
	}

	breaker := resilience.GetBreaker("llm:"+prefix, resilience.DefaultBreakerOpts)
	limiter := resilience.GetLimiter("llm:"+prefix, llmLimiterOpts)

	if err := limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llmgateway: rate limit: %w", err)
	}

	result := fn.Retry(ctx, retryOpts, func(ctx context.Context) fn.Result[string] {
		return resilience.CallResult(breaker, ctx, func(ctx context.Context) fn.Result[string] {
			return fn.FromPair(provider.Invoke(ctx, prompt))
		})
	})
	return result.Unwrap()
}

// InvokeJSONObject invokes the gateway and parses the response as a JSON
// object using the robust parser. Returns nil on total parse failure but
// still surfaces the underlying invocation error, if any.
func (g *Gateway) InvokeJSONObject(ctx context.Context, model, prompt string) (map[string]any, error) {
	text, err := g.Invoke(ctx, model, prompt)
	if err != nil {
		return nil, err
	}
	return RobustParseObject(text), nil
}

// InvokeJSONArray invokes the gateway and parses the response as a JSON
// array using the robust parser.
func (g *Gateway) InvokeJSONArray(ctx context.Context, model, prompt string) ([]map[string]any, error) {
	text, err := g.Invoke(ctx, model, prompt)
	if err != nil {
		return nil, err
	}
	return RobustParseArray(text), nil
}
