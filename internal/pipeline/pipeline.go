// Package pipeline implements the Translation Pipeline: the per-task
// state machine that extracts a subtitle source, chunks it, translates
// each chunk through the LLM Adapter, assembles the target format, and
// places the output, checkpointing into a per-task scratch directory so
// a pause or crash can resume without re-translating finished chunks.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mimelyc/subtrans/internal/apperr"
	"github.com/mimelyc/subtrans/internal/config"
	"github.com/mimelyc/subtrans/internal/langalias"
	"github.com/mimelyc/subtrans/internal/llmapi"
	"github.com/mimelyc/subtrans/internal/mediatoolbox"
	"github.com/mimelyc/subtrans/internal/subtitle"
	"github.com/mimelyc/subtrans/internal/task"
	"github.com/mimelyc/subtrans/pkg/file"
	"github.com/mimelyc/subtrans/pkg/log"
)

const (
	defaultChunkCharBudget = 3000
	defaultChunkMaxUnits   = 50
)

// ClientFactory builds an LLM Adapter client for a provider config. The
// default wraps llmapi.NewClient; tests inject a fake.
type ClientFactory interface {
	NewClient(cfg llmapi.Config) (llmapi.Client, error)
}

type defaultClientFactory struct{}

func (defaultClientFactory) NewClient(cfg llmapi.Config) (llmapi.Client, error) {
	return llmapi.NewClient(cfg)
}

// SettingsSource is the subset of RuntimeSettingsStore the Pipeline reads.
type SettingsSource interface {
	Get() config.Settings
}

// HistoryRecorder is the subset of the store the Pipeline writes a
// HistoryRecord to on successful completion.
type HistoryRecorder interface {
	RecordTranslation(ctx context.Context, filePath, targetLanguage, outputPath string) error
}

// NFOLookup opportunistically supplies show-level context (title, genre,
// plot) for the translation prompt; absence never blocks translation.
type NFOLookup interface {
	ContextFor(mediaPath string) string
}

// TermsLookup opportunistically supplies established term translations
// relevant to the chunk being translated, keeping proper nouns and
// recurring phrases consistent across a whole task; absence never
// blocks translation.
type TermsLookup interface {
	ContextFor(mediaPath, sourceLanguage, targetLanguage string, texts []string) string
}

// Deps are the Pipeline's external collaborators.
type Deps struct {
	Toolbox     mediatoolbox.Toolbox
	Clients     ClientFactory
	Settings    SettingsSource
	History     HistoryRecorder
	NFO         NFOLookup
	Terms       TermsLookup
	ScratchRoot string
}

// Pipeline drives one task through INIT -> EXTRACTING -> CHUNKING ->
// TRANSLATING -> ASSEMBLING -> PLACING -> DONE.
type Pipeline struct {
	toolbox     mediatoolbox.Toolbox
	clients     ClientFactory
	settings    SettingsSource
	history     HistoryRecorder
	nfo         NFOLookup
	terms       TermsLookup
	scratchRoot string
}

// New builds a Pipeline. Its Run method is a task.Executor.
func New(deps Deps) *Pipeline {
	clients := deps.Clients
	if clients == nil {
		clients = defaultClientFactory{}
	}
	return &Pipeline{
		toolbox:     deps.Toolbox,
		clients:     clients,
		settings:    deps.Settings,
		history:     deps.History,
		nfo:         deps.NFO,
		terms:       deps.Terms,
		scratchRoot: deps.ScratchRoot,
	}
}

func (p *Pipeline) scratchDir(taskID int64) string {
	return filepath.Join(p.scratchRoot, strconv.FormatInt(taskID, 10))
}

// Run executes one task end to end. It satisfies task.Executor.
func (p *Pipeline) Run(t *task.Task, ctrl *task.RunControl) (retErr error) {
	ctx := ctrl.Ctx
	scratch := p.scratchDir(t.ID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return apperr.NewUserError("creating scratch directory: %v", err)
	}
	defer func() {
		if retErr != task.ErrPaused {
			_ = os.RemoveAll(scratch)
		}
	}()

	settings := p.settings.Get()

	// INIT
	subtitlePath, err := p.resolveSubtitleSource(ctx, t, scratch)
	if err != nil {
		return err
	}

	// CHUNKING
	src, err := subtitle.NewReader(subtitlePath).Read()
	if err != nil {
		return err
	}

	sourceLanguage := t.SourceLanguage
	if sourceLanguage == "" || sourceLanguage == "auto" {
		sourceLanguage = src.Language.String()
	}

	chunks := chunkUnits(src.Units, defaultChunkCharBudget, defaultChunkMaxUnits)
	if len(chunks) == 0 {
		return apperr.NewUserError("subtitle file %s has no dialogue to translate", t.FilePath)
	}

	cp, _ := loadCheckpoint(scratch)
	startChunk := 0
	if cp != nil {
		startChunk = cp.ChunksDone
		applyCheckpoint(src.Units, cp.Translations)
	}

	// TRANSLATING
	client, err := p.clientFor(t.LLMProvider, settings)
	if err != nil {
		return err
	}

	mediaContext := ""
	if p.nfo != nil {
		mediaContext = p.nfo.ContextFor(t.FilePath)
	}

	for i := startChunk; i < len(chunks); i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ctrl.PauseRequested() {
			if err := saveCheckpoint(scratch, i, src.Units); err != nil {
				log.Error("saving checkpoint for task %d: %v", t.ID, err)
			}
			return task.ErrPaused
		}

		idxs := chunks[i]
		texts := make([]string, len(idxs))
		for j, idx := range idxs {
			texts[j] = src.Units[idx].Text
		}

		chunkContext := mediaContext
		if p.terms != nil {
			if termContext := p.terms.ContextFor(t.FilePath, sourceLanguage, t.TargetLanguage, texts); termContext != "" {
				chunkContext = strings.TrimSpace(chunkContext + "\n" + termContext)
			}
		}

		translated, err := llmapi.BatchTranslate(ctx, client, texts, sourceLanguage, t.TargetLanguage, chunkContext, len(texts))
		if err != nil {
			return err
		}
		for j, idx := range idxs {
			src.Units[idx].TranslatedText = translated[j]
		}

		if err := saveCheckpoint(scratch, i+1, src.Units); err != nil {
			log.Error("saving checkpoint for task %d: %v", t.ID, err)
		}
		ctrl.ReportProgress(int(100 * float64(i+1) / float64(len(chunks)) * 0.95))
	}

	// ASSEMBLING
	bilingual := subtitle.BilingualOptions{Enabled: settings.BilingualOutput, TranslatedFirst: true}
	outFile := &subtitle.File{
		Units:       src.Units,
		Language:    src.Language,
		Format:      src.Format,
		Preamble:    src.Preamble,
		EventFormat: src.EventFormat,
	}

	// PLACING
	outputPath, err := p.place(ctx, t, outFile, settings, subtitlePath, bilingual)
	if err != nil {
		return err
	}
	ctrl.ReportProgress(99)

	if p.history != nil {
		if err := p.history.RecordTranslation(ctx, t.FilePath, t.TargetLanguage, outputPath); err != nil {
			log.Error("recording translation history for task %d: %v", t.ID, err)
		}
	}

	return nil
}

func (p *Pipeline) clientFor(provider string, settings config.Settings) (llmapi.Client, error) {
	model, apiKey, baseURL := settings.ModelFor(provider)
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperr.NewUserError("no API key configured for provider %q", provider)
	}
	return p.clients.NewClient(llmapi.Config{
		Provider: provider,
		APIKey:   apiKey,
		Model:    model,
		BaseURL:  baseURL,
	})
}

// resolveSubtitleSource returns the path to a text subtitle file ready
// for CHUNKING: the source file itself when it already is one, or the
// scratch path an MKV subtitle track was extracted to.
func (p *Pipeline) resolveSubtitleSource(ctx context.Context, t *task.Task, scratch string) (string, error) {
	if !strings.EqualFold(filepath.Ext(t.FilePath), ".mkv") {
		return t.FilePath, nil
	}

	tracks, err := p.toolbox.ListTracks(ctx, t.FilePath)
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "", apperr.NewUserError("no subtitle tracks found in %s", t.FilePath)
	}

	track, err := selectTrack(tracks, t)
	if err != nil {
		return "", err
	}

	ext := ".srt"
	if track.Codec == "ass" || track.Codec == "ssa" {
		ext = ".ass"
	}
	extractedPath := filepath.Join(scratch, "source"+ext)
	if err := p.toolbox.ExtractTrack(ctx, t.FilePath, track, extractedPath); err != nil {
		return "", err
	}
	return extractedPath, nil
}

// selectTrack implements INIT's track-selection policy: the task's
// explicit choice, else a track matching source_language, else the
// first subtitle track that isn't already in target_language, else
// track 0.
func selectTrack(tracks []mediatoolbox.Track, t *task.Task) (mediatoolbox.Track, error) {
	if t.SubtitleTrack != nil {
		for _, tr := range tracks {
			if tr.Index == *t.SubtitleTrack {
				return tr, nil
			}
		}
		return mediatoolbox.Track{}, apperr.NewUserError("subtitle track %d not found in %s", *t.SubtitleTrack, t.FilePath)
	}

	if t.SourceLanguage != "" && t.SourceLanguage != "auto" {
		for _, tr := range tracks {
			if tr.Language != "" && langalias.Equal(tr.Language, t.SourceLanguage) {
				return tr, nil
			}
		}
	}

	for _, tr := range tracks {
		if tr.Language == "" || !langalias.Equal(tr.Language, t.TargetLanguage) {
			return tr, nil
		}
	}

	return tracks[0], nil
}

// place writes the translated subtitle to its final destination per
// Settings.subtitle_output_format and returns the path it wrote to.
func (p *Pipeline) place(ctx context.Context, t *task.Task, out *subtitle.File, settings config.Settings, subtitlePath string, bilingual subtitle.BilingualOptions) (string, error) {
	sourceExt := strings.ToLower(filepath.Ext(t.FilePath))
	stem := strings.TrimSuffix(t.FilePath, filepath.Ext(t.FilePath))

	switch settings.SubtitleOutputFormat {
	case "mkv":
		if sourceExt != ".mkv" {
			return "", apperr.NewUserError("invalid_output_format: cannot embed a subtitle track into a %s source", sourceExt)
		}
		rendered := filepath.Join(filepath.Dir(subtitlePath), "output"+formatExt(out.Format))
		out.Format = detectFormatOrDefault(out.Format)
		if err := subtitle.NewWriter(bilingual).Write(rendered, out); err != nil {
			return "", err
		}

		trackName := fmt.Sprintf("Translated (%s)", t.TargetLanguage)
		if settings.OverwriteMKV {
			if err := p.toolbox.ReplaceInPlace(ctx, t.FilePath, rendered, t.TargetLanguage, trackName, false); err != nil {
				return "", err
			}
			return t.FilePath, nil
		}
		outputPath := stem + ".translated.mkv"
		if err := p.toolbox.MergeSubtitle(ctx, t.FilePath, rendered, outputPath, t.TargetLanguage, trackName, false); err != nil {
			return "", err
		}
		return outputPath, nil

	case "ass":
		outputPath := stem + "." + t.TargetLanguage + ".ass"
		out.Format = subtitle.FormatASS
		return p.writeWithTempRename(outputPath, out, bilingual)

	default:
		outputPath := stem + "." + t.TargetLanguage + ".srt"
		out.Format = subtitle.FormatSRT
		return p.writeWithTempRename(outputPath, out, bilingual)
	}
}

func (p *Pipeline) writeWithTempRename(outputPath string, out *subtitle.File, bilingual subtitle.BilingualOptions) (string, error) {
	tmpPath := outputPath + ".tmp"
	if err := subtitle.NewWriter(bilingual).Write(tmpPath, out); err != nil {
		return "", err
	}
	if err := file.RenameCrossDevice(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", apperr.WrapCodecError(err, "placing output %s", outputPath)
	}
	return outputPath, nil
}

func formatExt(f subtitle.Format) string {
	if f == subtitle.FormatASS {
		return ".ass"
	}
	return ".srt"
}

func detectFormatOrDefault(f subtitle.Format) subtitle.Format {
	if f == "" {
		return subtitle.FormatSRT
	}
	return f
}

// chunkUnits groups dialogue units into ordered, non-overlapping chunks
// bounded by a character budget and a maximum unit count.
func chunkUnits(units []subtitle.DialogueUnit, charBudget, maxUnits int) [][]int {
	var chunks [][]int
	var current []int
	currentChars := 0

	for i, u := range units {
		textLen := len(u.Text)
		if len(current) > 0 && (currentChars+textLen > charBudget || len(current) >= maxUnits) {
			chunks = append(chunks, current)
			current = nil
			currentChars = 0
		}
		current = append(current, i)
		currentChars += textLen
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

type checkpoint struct {
	ChunksDone   int            `json:"chunks_done"`
	Translations map[int]string `json:"translations"`
}

func checkpointPath(scratch string) string {
	return filepath.Join(scratch, "checkpoint.json")
}

func loadCheckpoint(scratch string) (*checkpoint, error) {
	data, err := os.ReadFile(checkpointPath(scratch))
	if err != nil {
		return nil, err
	}
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func saveCheckpoint(scratch string, chunksDone int, units []subtitle.DialogueUnit) error {
	translations := make(map[int]string, len(units))
	for i, u := range units {
		if u.TranslatedText != "" {
			translations[i] = u.TranslatedText
		}
	}
	data, err := json.Marshal(checkpoint{ChunksDone: chunksDone, Translations: translations})
	if err != nil {
		return err
	}
	tmp := checkpointPath(scratch) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, checkpointPath(scratch))
}

func applyCheckpoint(units []subtitle.DialogueUnit, translations map[int]string) {
	for idx, text := range translations {
		if idx >= 0 && idx < len(units) {
			units[idx].TranslatedText = text
		}
	}
}
