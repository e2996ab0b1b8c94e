package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

const DefaultRuntimeSettingsFile = "./data/settings.json"

// Settings is the persisted singleton row backing GET/PUT /api/settings.
type Settings struct {
	OpenAIAPIKey  string `json:"openai_api_key"`
	OpenAIModel   string `json:"openai_model"`
	OpenAIBaseURL string `json:"openai_base_url"`

	ClaudeAPIKey string `json:"claude_api_key"`
	ClaudeModel  string `json:"claude_model"`

	DeepSeekAPIKey  string `json:"deepseek_api_key"`
	DeepSeekModel   string `json:"deepseek_model"`
	DeepSeekBaseURL string `json:"deepseek_base_url"`

	GLMAPIKey  string `json:"glm_api_key"`
	GLMModel   string `json:"glm_model"`
	GLMBaseURL string `json:"glm_base_url"`

	DefaultLLM string `json:"default_llm"`

	TargetLanguage string `json:"target_language"`
	SourceLanguage string `json:"source_language"`

	BilingualOutput bool `json:"bilingual_output"`

	SubtitleOutputFormat string `json:"subtitle_output_format"`
	OverwriteMKV         bool   `json:"overwrite_mkv"`

	MaxConcurrentTasks int `json:"max_concurrent_tasks"`

	ScanIntervalCron string `json:"scan_interval_cron"`
}

var validProviders = map[string]bool{"openai": true, "claude": true, "deepseek": true, "glm": true}
var validOutputFormats = map[string]bool{"mkv": true, "srt": true, "ass": true}

// Validate enforces the field-level constraints and the
// overwrite_mkv ⇒ format=mkv mutual constraint from spec §6.
func (s Settings) Validate() error {
	if !validProviders[s.DefaultLLM] {
		return fmt.Errorf("default_llm must be one of openai, claude, deepseek, glm")
	}
	if strings.TrimSpace(s.TargetLanguage) == "" {
		return fmt.Errorf("target_language is required")
	}
	if _, err := language.Parse(s.TargetLanguage); err != nil {
		return fmt.Errorf("invalid target_language: %w", err)
	}
	if strings.TrimSpace(s.SourceLanguage) != "" && s.SourceLanguage != "auto" {
		if _, err := language.Parse(s.SourceLanguage); err != nil {
			return fmt.Errorf("invalid source_language: %w", err)
		}
	}
	if !validOutputFormats[s.SubtitleOutputFormat] {
		return fmt.Errorf("subtitle_output_format must be one of mkv, srt, ass")
	}
	if s.OverwriteMKV && s.SubtitleOutputFormat != "mkv" {
		return fmt.Errorf("overwrite_mkv requires subtitle_output_format=mkv")
	}
	if s.MaxConcurrentTasks < 1 || s.MaxConcurrentTasks > 10 {
		return fmt.Errorf("max_concurrent_tasks must be between 1 and 10")
	}
	return nil
}

// Normalize applies the format/overwrite_mkv mutual-exclusion rule
// (setting format!=mkv forces overwrite_mkv=false) before validation,
// so a caller changing only subtitle_output_format doesn't also have
// to remember to clear overwrite_mkv.
func (s Settings) Normalize() Settings {
	if s.SubtitleOutputFormat != "mkv" {
		s.OverwriteMKV = false
	}
	return s
}

// DefaultSettings seeds a Settings row from process env defaults.
func DefaultSettings(providers ProviderDefaults) Settings {
	return Settings{
		OpenAIAPIKey:         providers.OpenAIAPIKey,
		OpenAIModel:          providers.OpenAIModel,
		OpenAIBaseURL:        providers.OpenAIBaseURL,
		ClaudeAPIKey:         providers.ClaudeAPIKey,
		ClaudeModel:          providers.ClaudeModel,
		DeepSeekAPIKey:       providers.DeepSeekAPIKey,
		DeepSeekModel:        providers.DeepSeekModel,
		DeepSeekBaseURL:      providers.DeepSeekBaseURL,
		GLMAPIKey:            providers.GLMAPIKey,
		GLMModel:             providers.GLMModel,
		GLMBaseURL:           providers.GLMBaseURL,
		DefaultLLM:           providers.DefaultLLM,
		TargetLanguage:       "zh",
		SourceLanguage:       "auto",
		BilingualOutput:      false,
		SubtitleOutputFormat: "srt",
		OverwriteMKV:         false,
		MaxConcurrentTasks:   2,
		ScanIntervalCron:     "*/30 * * * *",
	}
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func LoadRuntimeSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return s, nil
}

func WriteRuntimeSettingsFile(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore is the mutex-guarded, versioned singleton that
// backs GET/PUT /api/settings. Reads observe a coherent snapshot: an
// update swaps `current` under the lock, never mutates it in place.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current Settings
	version uint64
}

func NewRuntimeSettingsStore(path string, initial Settings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	initial = initial.Normalize()
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{path: path, current: initial}, nil
}

func (s *RuntimeSettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Version returns the monotonic counter bumped on every successful
// Update, so callers can detect a stale read without re-fetching.
func (s *RuntimeSettingsStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *RuntimeSettingsStore) Update(next Settings) (Settings, error) {
	next = next.Normalize()
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.version++
	s.mu.Unlock()
	return next, nil
}

// ModelFor returns the configured model name and API key for provider.
func (s Settings) ModelFor(provider string) (model, apiKey, baseURL string) {
	switch provider {
	case "openai":
		return s.OpenAIModel, s.OpenAIAPIKey, s.OpenAIBaseURL
	case "claude":
		return s.ClaudeModel, s.ClaudeAPIKey, ""
	case "deepseek":
		return s.DeepSeekModel, s.DeepSeekAPIKey, s.DeepSeekBaseURL
	case "glm":
		return s.GLMModel, s.GLMAPIKey, s.GLMBaseURL
	default:
		return "", "", ""
	}
}
