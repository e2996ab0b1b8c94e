package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mimelyc/subtrans/internal/config"
	"github.com/mimelyc/subtrans/internal/llmapi"
	"github.com/mimelyc/subtrans/internal/mediatoolbox"
	"github.com/mimelyc/subtrans/internal/subtitle"
	"github.com/mimelyc/subtrans/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToolbox struct {
	tracks      []mediatoolbox.Track
	extractedTo string
	extractText string
}

func (f *fakeToolbox) ListTracks(ctx context.Context, mediaPath string) ([]mediatoolbox.Track, error) {
	return f.tracks, nil
}

func (f *fakeToolbox) ExtractTrack(ctx context.Context, mediaPath string, track mediatoolbox.Track, outPath string) error {
	f.extractedTo = outPath
	return os.WriteFile(outPath, []byte(f.extractText), 0o644)
}

func (f *fakeToolbox) MergeSubtitle(ctx context.Context, videoPath, subtitlePath, outPath, language, trackName string, makeDefault bool) error {
	return os.WriteFile(outPath, []byte("merged"), 0o644)
}

func (f *fakeToolbox) ReplaceInPlace(ctx context.Context, videoPath, subtitlePath, language, trackName string, makeDefault bool) error {
	return os.WriteFile(videoPath, []byte("replaced"), 0o644)
}

type fakeLLMClient struct {
	calls int
}

func (f *fakeLLMClient) Translate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	lines := strings.Split(strings.TrimSpace(userPrompt), "\n")
	var out []string
	for i := range lines {
		out = append(out, fmt.Sprintf("%d. translated", i+1))
	}
	return strings.Join(out, "\n"), nil
}

func (f *fakeLLMClient) Healthcheck(ctx context.Context) error { return nil }

type fakeClientFactory struct {
	client llmapi.Client
}

func (f *fakeClientFactory) NewClient(cfg llmapi.Config) (llmapi.Client, error) {
	return f.client, nil
}

type fakeSettingsSource struct {
	settings config.Settings
}

func (f *fakeSettingsSource) Get() config.Settings { return f.settings }

type fakeHistoryRecorder struct {
	recorded map[string]string
}

func (f *fakeHistoryRecorder) RecordTranslation(ctx context.Context, filePath, targetLanguage, outputPath string) error {
	if f.recorded == nil {
		f.recorded = map[string]string{}
	}
	f.recorded[filePath+"|"+targetLanguage] = outputPath
	return nil
}

func baseSettings() config.Settings {
	return config.Settings{
		DefaultLLM:           "openai",
		OpenAIAPIKey:         "key",
		OpenAIModel:          "gpt-4o-mini",
		TargetLanguage:       "zh",
		SourceLanguage:       "auto",
		SubtitleOutputFormat: "srt",
		MaxConcurrentTasks:   1,
	}
}

func writeSRT(t *testing.T, path string, n int) {
	t.Helper()
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d\n00:00:0%d,000 --> 00:00:0%d,000\nLine %d\n\n", i, i, i+1, i)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func TestPipelineTranslatesSRTFileDirectly(t *testing.T) {
	dir := t.TempDir()
	srtPath := filepath.Join(dir, "episode.srt")
	writeSRT(t, srtPath, 3)

	history := &fakeHistoryRecorder{}
	p := New(Deps{
		Toolbox:     &fakeToolbox{},
		Clients:     &fakeClientFactory{client: &fakeLLMClient{}},
		Settings:    &fakeSettingsSource{settings: baseSettings()},
		History:     history,
		ScratchRoot: filepath.Join(dir, "scratch"),
	})

	tk := &task.Task{ID: 1, FilePath: srtPath, SourceLanguage: "auto", TargetLanguage: "zh", LLMProvider: "openai"}
	ctrl := task.NewRunControl(context.Background(), nil, nil)

	err := p.Run(tk, ctrl)
	require.NoError(t, err)

	outPath := filepath.Join(dir, "episode.zh.srt")
	data, readErr := os.ReadFile(outPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "translated")
	assert.Equal(t, outPath, history.recorded[srtPath+"|zh"])
}

func TestPipelineExtractsFromMKVBeforeTranslating(t *testing.T) {
	dir := t.TempDir()
	mkvPath := filepath.Join(dir, "episode.mkv")
	require.NoError(t, os.WriteFile(mkvPath, []byte("fake mkv"), 0o644))

	srtContent := "1\n00:00:01,000 --> 00:00:02,000\nHello\n\n"
	toolbox := &fakeToolbox{
		tracks:      []mediatoolbox.Track{{Index: 0, Codec: "subrip", Language: "eng"}},
		extractText: srtContent,
	}

	p := New(Deps{
		Toolbox:     toolbox,
		Clients:     &fakeClientFactory{client: &fakeLLMClient{}},
		Settings:    &fakeSettingsSource{settings: baseSettings()},
		History:     &fakeHistoryRecorder{},
		ScratchRoot: filepath.Join(dir, "scratch"),
	})

	tk := &task.Task{ID: 2, FilePath: mkvPath, SourceLanguage: "auto", TargetLanguage: "zh", LLMProvider: "openai"}
	ctrl := task.NewRunControl(context.Background(), nil, nil)

	err := p.Run(tk, ctrl)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(toolbox.extractedTo, "source.srt"))

	outPath := filepath.Join(dir, "episode.zh.srt")
	_, statErr := os.Stat(outPath)
	require.NoError(t, statErr)
}

func TestPipelinePausesAtChunkBoundaryAndResumes(t *testing.T) {
	dir := t.TempDir()
	srtPath := filepath.Join(dir, "episode.srt")
	writeSRT(t, srtPath, 2)

	scratchRoot := filepath.Join(dir, "scratch")
	client := &fakeLLMClient{}
	p := New(Deps{
		Toolbox:     &fakeToolbox{},
		Clients:     &fakeClientFactory{client: client},
		Settings:    &fakeSettingsSource{settings: baseSettings()},
		History:     &fakeHistoryRecorder{},
		ScratchRoot: scratchRoot,
	})

	tk := &task.Task{ID: 3, FilePath: srtPath, SourceLanguage: "auto", TargetLanguage: "zh", LLMProvider: "openai"}

	paused := &atomic.Bool{}
	paused.Store(true)
	ctrl := task.NewRunControl(context.Background(), paused, nil)

	err := p.Run(tk, ctrl)
	require.ErrorIs(t, err, task.ErrPaused)

	_, statErr := os.Stat(filepath.Join(scratchRoot, "3", "checkpoint.json"))
	require.NoError(t, statErr)

	resumedCtrl := task.NewRunControl(context.Background(), nil, nil)
	err = p.Run(tk, resumedCtrl)
	require.NoError(t, err)

	outPath := filepath.Join(dir, "episode.zh.srt")
	_, statErr = os.Stat(outPath)
	require.NoError(t, statErr)

	_, statErr = os.Stat(filepath.Join(scratchRoot, "3"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipelineRejectsMKVOutputFromNonMKVSource(t *testing.T) {
	dir := t.TempDir()
	srtPath := filepath.Join(dir, "episode.srt")
	writeSRT(t, srtPath, 1)

	settings := baseSettings()
	settings.SubtitleOutputFormat = "mkv"

	p := New(Deps{
		Toolbox:     &fakeToolbox{},
		Clients:     &fakeClientFactory{client: &fakeLLMClient{}},
		Settings:    &fakeSettingsSource{settings: settings},
		History:     &fakeHistoryRecorder{},
		ScratchRoot: filepath.Join(dir, "scratch"),
	})

	tk := &task.Task{ID: 4, FilePath: srtPath, SourceLanguage: "auto", TargetLanguage: "zh", LLMProvider: "openai"}
	ctrl := task.NewRunControl(context.Background(), nil, nil)

	err := p.Run(tk, ctrl)
	require.Error(t, err)
}

func TestChunkUnitsRespectsCharBudgetAndMaxUnits(t *testing.T) {
	units := make([]subtitle.DialogueUnit, 10)
	for i := range units {
		units[i] = subtitle.DialogueUnit{Index: i, Text: strings.Repeat("x", 400)}
	}
	chunks := chunkUnits(units, 1000, 3)
	total := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 3)
		total += len(c)
	}
	assert.Equal(t, 10, total)
}

func TestChunkUnitsSplitsOnCharBudget(t *testing.T) {
	units := []subtitle.DialogueUnit{
		{Index: 0, Text: strings.Repeat("x", 2000)},
		{Index: 1, Text: strings.Repeat("y", 2000)},
	}
	chunks := chunkUnits(units, 3000, 50)
	require.Len(t, chunks, 2)
	assert.Equal(t, []int{0}, chunks[0])
	assert.Equal(t, []int{1}, chunks[1])
}
