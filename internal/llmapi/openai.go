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

// openAICompatClient talks the OpenAI chat/completions wire format, which
// DeepSeek and GLM (Zhipu) both mirror closely enough to share this
// implementation with only the base URL and model differing.
type openAICompatClient struct {
	*retrier
	cfg     Config
	baseURL string
}

func newOpenAICompatClient(cfg Config, defaultBaseURL string, opts ...Option) *openAICompatClient {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &openAICompatClient{retrier: newRetrier(opts...), cfg: cfg, baseURL: baseURL}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *openAICompatClient) Translate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.do(ctx, c.cfg.Provider, func() (string, error) {
		return c.sendOnce(ctx, systemPrompt, userPrompt)
	})
}

func (c *openAICompatClient) Healthcheck(ctx context.Context) error {
	_, err := c.do(ctx, c.cfg.Provider, func() (string, error) {
		return c.sendOnce(ctx, "You are a translation engine.", "Translate the word 'hello' to French. Reply with only the translation.")
	})
	return err
}

func (c *openAICompatClient) sendOnce(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llmapi: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llmapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.NewTransientError(fmt.Sprintf("%s: request failed", c.cfg.Provider), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.NewTransientError(fmt.Sprintf("%s: reading response", c.cfg.Provider), err)
	}
	if resp.StatusCode >= 300 {
		return "", classifyAuthOrStatus(c.cfg.Provider, resp.StatusCode, string(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", apperr.NewTransientError(fmt.Sprintf("%s: decoding response", c.cfg.Provider), err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%s: api error: %s", c.cfg.Provider, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices", c.cfg.Provider)
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%s: empty completion content", c.cfg.Provider)
	}
	return content, nil
}
