package library

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mimelyc/subtrans/internal/skip"
)

// Decider is the subset of the Skip Oracle a Scanner consults to learn
// whether a media file still needs translating. Reusing it means a
// library scan reaches the exact same already_has_track/history/
// filename-marker verdict that task creation would, instead of a
// second, parallel notion of "already translated".
type Decider interface {
	Decide(ctx context.Context, req skip.Request, settings skip.OutputSettings) (skip.Decision, error)
}

// Scanner walks each configured source directory for media files and
// asks Decider whether each one is still translatable.
type Scanner struct {
	decider        Decider
	targetLanguage string
	settings       skip.OutputSettings
}

// NewScanner builds a Scanner that decides every file's status against
// targetLanguage under settings.
func NewScanner(decider Decider, targetLanguage string, settings skip.OutputSettings) *Scanner {
	return &Scanner{decider: decider, targetLanguage: targetLanguage, settings: settings}
}

// Scan walks every source directory and returns each media file's
// current translation status. A source whose path no longer exists is
// skipped rather than failing the whole scan.
func (s *Scanner) Scan(ctx context.Context, sources []SourceConfig) (*Library, error) {
	lib := &Library{
		Sources: make([]Source, 0, len(sources)),
		Media:   make([]MediaStatus, 0),
	}

	for _, src := range sources {
		if src.Path == "" {
			continue
		}
		if _, err := os.Stat(src.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		lib.Sources = append(lib.Sources, Source{ID: src.ID, Name: src.Name, Path: src.Path})

		mediaFiles, err := findMediaFiles(src.Path)
		if err != nil {
			return nil, err
		}
		for _, mediaPath := range mediaFiles {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			decision, err := s.decider.Decide(ctx, skip.Request{
				FilePath:       mediaPath,
				TargetLanguage: s.targetLanguage,
			}, s.settings)
			if err != nil {
				return nil, err
			}

			lib.Media = append(lib.Media, MediaStatus{
				MediaPath:    mediaPath,
				SourceID:     src.ID,
				Translatable: decision.Proceed,
				SkipReason:   string(decision.Reason),
			})
		}
	}

	return lib, nil
}

var mediaExts = []string{
	".mkv", ".mp4", ".m4v", ".mov", ".avi", ".wmv", ".flv", ".webm",
	".ogv", ".3gp", ".3g2", ".f4v", ".asf", ".rm", ".rmvb", ".ts",
	".m2ts", ".mts", ".vob", ".mpg", ".mpeg", ".m2v", ".divx", ".xvid",
}

func findMediaFiles(root string) ([]string, error) {
	ret := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if slices.Contains(mediaExts, ext) {
			ret = append(ret, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
