// Package llmapi is the LLM Adapter: a uniform chat-completion contract
// over the OpenAI-compatible, Anthropic, DeepSeek and GLM provider APIs,
// with shared retry/backoff, auth-error handling and a numbered-list
// batch translation protocol.
package llmapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config is the per-provider connection info pulled from Settings.
type Config struct {
	Provider string // "openai", "claude", "deepseek", "glm"
	APIKey   string
	Model    string
	BaseURL  string
}

// Client is the contract every provider variant implements.
type Client interface {
	// Translate sends a single chat completion turn and returns the raw
	// assistant content.
	Translate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// Healthcheck issues a trivial one-word translation to confirm the
	// API key and model are usable.
	Healthcheck(ctx context.Context) error
}

// NewClient builds the Client variant for cfg.Provider.
func NewClient(cfg Config, opts ...Option) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llmapi: %s requires an api key", cfg.Provider)
	}
	switch cfg.Provider {
	case "openai":
		return newOpenAICompatClient(cfg, "https://api.openai.com/v1", opts...), nil
	case "deepseek":
		return newOpenAICompatClient(cfg, "https://api.deepseek.com/v1", opts...), nil
	case "glm":
		return newOpenAICompatClient(cfg, "https://open.bigmodel.cn/api/paas/v4", opts...), nil
	case "claude":
		return newClaudeClient(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("llmapi: unknown provider %q", cfg.Provider)
	}
}

// Option customizes a Client's retry/transport behavior; shared across
// provider variants.
type Option func(*retrier)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(r *retrier) {
		if h != nil {
			r.httpClient = h
		}
	}
}

// WithSleeper overrides how retry delays are performed; tests use this
// to avoid real sleeps.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(r *retrier) { r.sleeper = sleeper }
}

// WithMaxAttempts overrides the default retry attempt count (5).
func WithMaxAttempts(n int) Option {
	return func(r *retrier) { r.maxAttempts = n }
}

// WithRand overrides the jitter source; tests pin it for determinism.
func WithRand(randFloat func() float64) Option {
	return func(r *retrier) { r.randFloat = randFloat }
}
