package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mimelyc/subtrans/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "subtrans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreTasksRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	track := 2
	tk := &task.Task{
		FilePath:       "/media/show/ep1.mkv",
		FileName:       "ep1.mkv",
		Status:         task.StatusPending,
		SourceLanguage: "en",
		TargetLanguage: "zh",
		LLMProvider:    "openai",
		SubtitleTrack:  &track,
		ForceOverride:  true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	id, err := s.InsertTask(ctx, tk)
	require.NoError(t, err)
	require.NotZero(t, id)

	loaded, err := s.LoadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, id, loaded[0].ID)
	assert.Equal(t, tk.FilePath, loaded[0].FilePath)
	assert.Equal(t, tk.TargetLanguage, loaded[0].TargetLanguage)
	require.NotNil(t, loaded[0].SubtitleTrack)
	assert.Equal(t, 2, *loaded[0].SubtitleTrack)
	assert.True(t, loaded[0].ForceOverride)

	loaded[0].Status = task.StatusCompleted
	loaded[0].Progress = 100
	completedAt := now.Add(time.Minute)
	loaded[0].CompletedAt = &completedAt
	require.NoError(t, s.UpdateTask(ctx, loaded[0]))

	reloaded, err := s.LoadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	assert.Equal(t, task.StatusCompleted, reloaded[0].Status)
	assert.Equal(t, 100, reloaded[0].Progress)
	require.NotNil(t, reloaded[0].CompletedAt)

	require.NoError(t, s.DeleteTask(ctx, id))
	empty, err := s.LoadTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStoreTasksPreserveOrderByCreatedAt(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, name := range []string{"first.mkv", "second.mkv", "third.mkv"} {
		_, err := s.InsertTask(ctx, &task.Task{
			FilePath:       "/media/" + name,
			FileName:       name,
			Status:         task.StatusPending,
			TargetLanguage: "zh",
			LLMProvider:    "openai",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
			UpdatedAt:      base,
		})
		require.NoError(t, err)
	}

	loaded, err := s.LoadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, "first.mkv", loaded[0].FileName)
	assert.Equal(t, "second.mkv", loaded[1].FileName)
	assert.Equal(t, "third.mkv", loaded[2].FileName)
}

func TestSQLiteStoreWatchersRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	w := &WatcherRecord{
		Path:              "/media/shows",
		Enabled:           true,
		TargetLanguage:    "zh",
		LLMProvider:       "claude",
		ScanIntervalCron:  "*/30 * * * *",
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
	}
	id, err := s.InsertWatcher(ctx, w)
	require.NoError(t, err)

	loaded, err := s.LoadWatchers(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, id, loaded[0].ID)
	assert.Equal(t, w.Path, loaded[0].Path)
	assert.True(t, loaded[0].Enabled)

	loaded[0].Enabled = false
	require.NoError(t, s.UpdateWatcher(ctx, loaded[0]))

	reloaded, err := s.LoadWatchers(ctx)
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	assert.False(t, reloaded[0].Enabled)

	require.NoError(t, s.DeleteWatcher(ctx, id))
	empty, err := s.LoadWatchers(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStoreAppSettings(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, "onboarding_dismissed")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "onboarding_dismissed", "true"))
	value, ok, err := s.GetSetting(ctx, "onboarding_dismissed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "true", value)

	require.NoError(t, s.SetSetting(ctx, "onboarding_dismissed", "false"))
	value, ok, err = s.GetSetting(ctx, "onboarding_dismissed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "false", value)
}

func TestSQLiteStoreTranslationHistory(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.HasTranslation(ctx, "/media/ep1.mkv", "zh")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RecordTranslation(ctx, "/media/ep1.mkv", "zh", "/media/ep1.zh.srt"))

	outputPath, ok, err := s.HasTranslation(ctx, "/media/ep1.mkv", "zh")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/media/ep1.zh.srt", outputPath)

	_, ok, err = s.HasTranslation(ctx, "/media/ep1.mkv", "fr")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RecordTranslation(ctx, "/media/ep1.mkv", "zh", "/media/ep1.zh.updated.srt"))
	outputPath, ok, err = s.HasTranslation(ctx, "/media/ep1.mkv", "zh")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/media/ep1.zh.updated.srt", outputPath)
}

func TestMigrationVersionParsesLeadingDigits(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("0001_init.sql"))
	assert.Equal(t, 12, migrationVersion("12_add_column.sql"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}
