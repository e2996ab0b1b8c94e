package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mimelyc/subtrans/internal/config"
	"github.com/mimelyc/subtrans/internal/llmapi"
)

// providerModels is the static per-provider model catalog behind
// GET /api/settings/llm-providers.
var providerModels = map[string][]string{
	"openai":   {"gpt-4o", "gpt-4o-mini", "gpt-4-turbo"},
	"claude":   {"claude-3-opus-20240229", "claude-3-sonnet-20240229", "claude-3-haiku-20240307"},
	"deepseek": {"deepseek-chat", "deepseek-reasoner"},
	"glm":      {"glm-4.6", "glm-4-flash"},
}

var providerOrder = []string{"openai", "claude", "deepseek", "glm"}

// supportedLanguages is the static BCP-47 catalog behind
// GET /api/settings/languages.
var supportedLanguages = []languageOption{
	{Code: "zh", Name: "Chinese (Simplified)"},
	{Code: "en", Name: "English"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ko", Name: "Korean"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "es", Name: "Spanish"},
	{Code: "ru", Name: "Russian"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "it", Name: "Italian"},
}

type languageOption struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// testLLMTimeout bounds how long a provider healthcheck may run.
const testLLMTimeout = 15 * time.Second

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		current := s.settings.Get()
		writeJSON(w, http.StatusOK, maskKeys(current))
	case http.MethodPut:
		s.updateSettings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	current := s.settings.Get()

	var incoming config.Settings
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	next := current
	next.OpenAIAPIKey = resolveKeyField(incoming.OpenAIAPIKey, current.OpenAIAPIKey)
	next.OpenAIModel = orCurrent(incoming.OpenAIModel, current.OpenAIModel)
	next.OpenAIBaseURL = orCurrent(incoming.OpenAIBaseURL, current.OpenAIBaseURL)
	next.ClaudeAPIKey = resolveKeyField(incoming.ClaudeAPIKey, current.ClaudeAPIKey)
	next.ClaudeModel = orCurrent(incoming.ClaudeModel, current.ClaudeModel)
	next.DeepSeekAPIKey = resolveKeyField(incoming.DeepSeekAPIKey, current.DeepSeekAPIKey)
	next.DeepSeekModel = orCurrent(incoming.DeepSeekModel, current.DeepSeekModel)
	next.DeepSeekBaseURL = orCurrent(incoming.DeepSeekBaseURL, current.DeepSeekBaseURL)
	next.GLMAPIKey = resolveKeyField(incoming.GLMAPIKey, current.GLMAPIKey)
	next.GLMModel = orCurrent(incoming.GLMModel, current.GLMModel)
	next.GLMBaseURL = orCurrent(incoming.GLMBaseURL, current.GLMBaseURL)
	next.DefaultLLM = orCurrent(incoming.DefaultLLM, current.DefaultLLM)
	next.TargetLanguage = orCurrent(incoming.TargetLanguage, current.TargetLanguage)
	next.SourceLanguage = orCurrent(incoming.SourceLanguage, current.SourceLanguage)
	next.BilingualOutput = incoming.BilingualOutput
	next.SubtitleOutputFormat = orCurrent(incoming.SubtitleOutputFormat, current.SubtitleOutputFormat)
	next.OverwriteMKV = incoming.OverwriteMKV
	next.ScanIntervalCron = orCurrent(incoming.ScanIntervalCron, current.ScanIntervalCron)
	next.MaxConcurrentTasks = current.MaxConcurrentTasks
	if incoming.MaxConcurrentTasks != 0 {
		next.MaxConcurrentTasks = incoming.MaxConcurrentTasks
	}

	saved, err := s.settings.Update(next)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.tasks.SetMaxConcurrent(saved.MaxConcurrentTasks)
	writeJSON(w, http.StatusOK, maskKeys(saved))
}

// resolveKeyField keeps the stored key unless incoming carries a real,
// unmasked replacement: an empty value or one that still looks like a
// mask (maskKey's own output) never overwrites what's stored.
func resolveKeyField(incoming, current string) string {
	if incoming == "" || isMaskedValue(incoming) {
		return current
	}
	return incoming
}

func orCurrent(incoming, current string) string {
	if incoming == "" {
		return current
	}
	return incoming
}

func isMaskedValue(v string) bool {
	return v == "***" || strings.Contains(v, "...")
}

func maskKeys(s config.Settings) config.Settings {
	s.OpenAIAPIKey = maskKey(s.OpenAIAPIKey)
	s.ClaudeAPIKey = maskKey(s.ClaudeAPIKey)
	s.DeepSeekAPIKey = maskKey(s.DeepSeekAPIKey)
	s.GLMAPIKey = maskKey(s.GLMAPIKey)
	return s
}

// maskKey mirrors the original system's display masking: short keys
// collapse entirely, longer ones keep a 3-char prefix and 4-char suffix.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-4:]
}

func (s *Server) handleLLMProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := make([]map[string]any, 0, len(providerOrder))
	for _, provider := range providerOrder {
		resp = append(resp, map[string]any{
			"provider": provider,
			"models":   providerModels[provider],
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, supportedLanguages)
}

type testLLMRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
}

func (s *Server) handleTestLLM(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req testLLMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if _, ok := providerModels[req.Provider]; !ok {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	settings := s.settings.Get()
	storedModel, storedKey, storedBaseURL := settings.ModelFor(req.Provider)

	apiKey := req.APIKey
	if apiKey == "" || isMaskedValue(apiKey) {
		apiKey = storedKey
	}
	model := req.Model
	if model == "" {
		model = storedModel
	}
	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = storedBaseURL
	}
	if apiKey == "" {
		writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	client, err := llmapi.NewClient(llmapi.Config{
		Provider: req.Provider,
		APIKey:   apiKey,
		Model:    model,
		BaseURL:  baseURL,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), testLLMTimeout)
	defer cancel()
	if err := client.Healthcheck(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
