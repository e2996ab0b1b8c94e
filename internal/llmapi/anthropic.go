package llmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mimelyc/subtrans/internal/apperr"
)

const anthropicVersion = "2023-06-01"

// claudeClient talks Anthropic's /v1/messages format, which separates
// the system prompt from the message list and uses x-api-key auth
// instead of a bearer token.
type claudeClient struct {
	*retrier
	cfg     Config
	baseURL string
}

func newClaudeClient(cfg Config, opts ...Option) *claudeClient {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &claudeClient{retrier: newRetrier(opts...), cfg: cfg, baseURL: baseURL}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *claudeClient) Translate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.do(ctx, c.cfg.Provider, func() (string, error) {
		return c.sendOnce(ctx, systemPrompt, userPrompt)
	})
}

func (c *claudeClient) Healthcheck(ctx context.Context) error {
	_, err := c.do(ctx, c.cfg.Provider, func() (string, error) {
		return c.sendOnce(ctx, "You are a translation engine.", "Translate the word 'hello' to French. Reply with only the translation.")
	})
	return err
}

func (c *claudeClient) sendOnce(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := anthropicRequest{
		Model:     c.cfg.Model,
		System:    systemPrompt,
		MaxTokens: 4096,
		Messages: []anthropicMessage{
			{Role: "user", Content: userPrompt},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llmapi: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llmapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.NewTransientError("claude: request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.NewTransientError("claude: reading response", err)
	}
	if resp.StatusCode >= 300 {
		return "", classifyAuthOrStatus("claude", resp.StatusCode, string(raw))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", apperr.NewTransientError("claude: decoding response", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("claude: api error: %s", parsed.Error.Message)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("claude: empty completion content")
}
