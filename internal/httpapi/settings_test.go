package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/mimelyc/subtrans/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSettingsMasksAPIKeys(t *testing.T) {
	srv, _, _, _, _, _ := newTestServer()
	req := httptest.NewRequest("GET", "/api/settings", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var got config.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEqual(t, "sk-test1234567890", got.OpenAIAPIKey)
	assert.Contains(t, got.OpenAIAPIKey, "...")
}

func TestUpdateSettingsKeepsStoredKeyWhenMasked(t *testing.T) {
	srv, tasks, _, _, _, settings := newTestServer()

	body, _ := json.Marshal(map[string]any{
		"openai_api_key":         "***",
		"default_llm":            "openai",
		"target_language":        "ja",
		"source_language":        "auto",
		"subtitle_output_format": "srt",
		"max_concurrent_tasks":   4,
	})
	req := httptest.NewRequest("PUT", "/api/settings", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "sk-test1234567890", settings.Get().OpenAIAPIKey)
	assert.Equal(t, "ja", settings.Get().TargetLanguage)
	assert.Equal(t, 4, tasks.maxConc)
}

func TestUpdateSettingsRejectsInvalidProvider(t *testing.T) {
	srv, _, _, _, _, _ := newTestServer()
	body, _ := json.Marshal(map[string]any{
		"default_llm":            "bogus",
		"target_language":        "ja",
		"subtitle_output_format": "srt",
		"max_concurrent_tasks":   2,
	})
	req := httptest.NewRequest("PUT", "/api/settings", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestLLMProvidersListsAllFour(t *testing.T) {
	srv, _, _, _, _, _ := newTestServer()
	req := httptest.NewRequest("GET", "/api/settings/llm-providers", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 4)
}

func TestLanguagesListsSupportedCodes(t *testing.T) {
	srv, _, _, _, _, _ := newTestServer()
	req := httptest.NewRequest("GET", "/api/settings/languages", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var got []languageOption
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEmpty(t, got)
}

func TestTestLLMRejectsUnknownProvider(t *testing.T) {
	srv, _, _, _, _, _ := newTestServer()
	body, _ := json.Marshal(testLLMRequest{Provider: "bogus"})
	req := httptest.NewRequest("POST", "/api/settings/test-llm", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestTestLLMRejectsMissingAPIKey(t *testing.T) {
	srv, _, _, _, _, settings := newTestServer()
	current := settings.Get()
	current.OpenAIAPIKey = ""
	settings.current = current

	body, _ := json.Marshal(testLLMRequest{Provider: "openai"})
	req := httptest.NewRequest("POST", "/api/settings/test-llm", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestMaskKeyCollapsesShortKeys(t *testing.T) {
	assert.Equal(t, "***", maskKey("short"))
	assert.Equal(t, "", maskKey(""))
	assert.Equal(t, "sk-...7890", maskKey("sk-test1234567890"))
}
