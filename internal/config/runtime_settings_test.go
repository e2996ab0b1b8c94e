package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() Settings {
	return DefaultSettings(ProviderDefaults{DefaultLLM: "openai", OpenAIModel: "gpt-4o-mini"})
}

func TestSettingsValidateOverwriteMKVRequiresFormat(t *testing.T) {
	s := testSettings()
	s.OverwriteMKV = true
	s.SubtitleOutputFormat = "srt"
	assert.Error(t, s.Validate())

	s.SubtitleOutputFormat = "mkv"
	assert.NoError(t, s.Validate())
}

func TestSettingsNormalizeClearsOverwriteMKV(t *testing.T) {
	s := testSettings()
	s.OverwriteMKV = true
	s.SubtitleOutputFormat = "srt"
	got := s.Normalize()
	assert.False(t, got.OverwriteMKV)
}

func TestRuntimeSettingsStoreUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := NewRuntimeSettingsStore(path, testSettings())
	require.NoError(t, err)

	next := testSettings()
	next.TargetLanguage = "ja"
	saved, err := store.Update(next)
	require.NoError(t, err)
	assert.Equal(t, "ja", saved.TargetLanguage)
	assert.Equal(t, uint64(1), store.Version())
	assert.Equal(t, "ja", store.Get().TargetLanguage)
}

func TestRuntimeSettingsStoreRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := NewRuntimeSettingsStore(path, testSettings())
	require.NoError(t, err)

	bad := testSettings()
	bad.MaxConcurrentTasks = 99
	_, err = store.Update(bad)
	require.Error(t, err)
	assert.Equal(t, uint64(0), store.Version())
}
