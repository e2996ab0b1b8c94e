// Package config holds the two configuration layers the rest of the
// system reads from: a static env-derived Config loaded once at
// startup, and a mutable RuntimeSettingsStore (see runtime_settings.go)
// backing the /api/settings surface.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/mimelyc/subtrans/pkg/log"
)

// Config holds process-wide configuration read once at startup.
//
// Environment variables:
//   - DATA_DIR: root for app.db and the scratch tree (default ./data)
//   - HTTP_ADDR: HTTP listen address (default :8080)
//   - FFMPEG_BIN, FFPROBE_BIN, MKVMERGE_BIN, MKVEXTRACT_BIN: external
//     binary names/paths (default to the bare name, resolved via PATH)
//   - WS_SUBSCRIBER_BUFFER: read and stored, but not passed to the
//     Progress Bus, whose per-subscriber buffer is fixed at 64
//   - SCAN_INTERVAL_CRON: default watcher reconciliation schedule
type Config struct {
	DataDir      string
	HTTPAddr     string
	ScratchRoot  string
	DBPath       string
	SettingsFile string

	FfmpegBin     string
	FfprobeBin    string
	MkvmergeBin   string
	MkvextractBin string

	WSSubscriberBuffer int
	ScanIntervalCron   string

	Providers ProviderDefaults
}

// ProviderDefaults seeds the RuntimeSettingsStore's per-provider fields
// from the environment, matching spec's "environment variables mirror
// settings keys in uppercase" rule.
type ProviderDefaults struct {
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	ClaudeAPIKey    string
	ClaudeModel     string
	DeepSeekAPIKey  string
	DeepSeekModel   string
	DeepSeekBaseURL string
	GLMAPIKey       string
	GLMModel        string
	GLMBaseURL      string
	DefaultLLM      string
}

// Option customizes a Config after env defaults are applied.
type Option func(*Config)

// NewFromEnv loads .env (if present) then builds a Config from the
// process environment, applying opts last.
func NewFromEnv(opts ...Option) (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnvString("DATA_DIR", "./data")
	cfg := &Config{
		DataDir:      dataDir,
		HTTPAddr:     getEnvString("HTTP_ADDR", ":8080"),
		ScratchRoot:  getEnvString("SCRATCH_ROOT", dataDir+"/scratch"),
		DBPath:       getEnvString("DB_PATH", dataDir+"/app.db"),
		SettingsFile: getEnvString("SETTINGS_FILE", dataDir+"/settings.json"),

		FfmpegBin:     getEnvString("FFMPEG_BIN", "ffmpeg"),
		FfprobeBin:    getEnvString("FFPROBE_BIN", "ffprobe"),
		MkvmergeBin:   getEnvString("MKVMERGE_BIN", "mkvmerge"),
		MkvextractBin: getEnvString("MKVEXTRACT_BIN", "mkvextract"),

		WSSubscriberBuffer: getEnvInt("WS_SUBSCRIBER_BUFFER", 64),
		ScanIntervalCron:   getEnvString("SCAN_INTERVAL_CRON", "*/30 * * * *"),

		Providers: ProviderDefaults{
			OpenAIAPIKey:    getEnvString("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:   getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			ClaudeAPIKey:    getEnvString("CLAUDE_API_KEY", ""),
			ClaudeModel:     getEnvString("CLAUDE_MODEL", "claude-sonnet-4-20250514"),
			DeepSeekAPIKey:  getEnvString("DEEPSEEK_API_KEY", ""),
			DeepSeekModel:   getEnvString("DEEPSEEK_MODEL", "deepseek-chat"),
			DeepSeekBaseURL: getEnvString("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
			GLMAPIKey:       getEnvString("GLM_API_KEY", ""),
			GLMModel:        getEnvString("GLM_MODEL", "glm-4-flash"),
			GLMBaseURL:      getEnvString("GLM_BASE_URL", "https://open.bigmodel.cn/api/paas/v4"),
			DefaultLLM:      getEnvString("DEFAULT_LLM", "openai"),
		},
	}

	log.Info("config loaded: data_dir=%s http_addr=%s", cfg.DataDir, cfg.HTTPAddr)

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	return nil
}
