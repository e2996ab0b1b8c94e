// Package skip implements the Skip Oracle: given a candidate
// (path, target_language, force_override), decide whether the
// Translation Pipeline should run against it, or skip it with a reason.
package skip

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/mimelyc/subtrans/internal/apperr"
	"github.com/mimelyc/subtrans/internal/langalias"
	"github.com/mimelyc/subtrans/internal/mediatoolbox"
)

// TrackLister is the subset of the Media Toolbox the Oracle needs to
// check for an already-embedded subtitle track.
type TrackLister interface {
	ListTracks(ctx context.Context, mediaPath string) ([]mediatoolbox.Track, error)
}

// HistoryChecker is the subset of the store the Oracle needs for the
// history check.
type HistoryChecker interface {
	HasTranslation(ctx context.Context, filePath, targetLanguage string) (string, bool, error)
}

// ActiveTaskChecker is the subset of the Scheduler the Oracle needs for
// the in-progress check.
type ActiveTaskChecker interface {
	HasActive(filePath, targetLanguage string) bool
}

// OutputSettings is the slice of Settings the Oracle needs to predict
// the Pipeline's output path without depending on internal/config.
type OutputSettings struct {
	SubtitleOutputFormat string // "srt", "ass", or "mkv"
	OverwriteMKV         bool
}

// Request is one candidate the Oracle decides on.
type Request struct {
	FilePath       string
	TargetLanguage string
	ForceOverride  bool
}

// Decision is the Oracle's verdict. Reason is empty when Proceed is true.
type Decision struct {
	Proceed bool
	Reason  apperr.SkipReason
}

// Oracle evaluates the seven-step decision chain.
type Oracle struct {
	Tracks  TrackLister
	History HistoryChecker
	Active  ActiveTaskChecker
}

// Decide runs the ordered chain. Active may be nil if the caller has no
// scheduler handle yet (e.g. a dry-run); the in-progress step is then
// skipped rather than erroring.
func (o *Oracle) Decide(ctx context.Context, req Request, settings OutputSettings) (Decision, error) {
	if req.ForceOverride {
		return Decision{Proceed: true}, nil
	}

	if strings.EqualFold(filepath.Ext(req.FilePath), ".mkv") && o.Tracks != nil {
		tracks, err := o.Tracks.ListTracks(ctx, req.FilePath)
		if err != nil {
			return Decision{}, err
		}
		for _, tr := range tracks {
			if tr.Language != "" && langalias.Equal(tr.Language, req.TargetLanguage) {
				return Decision{Reason: apperr.SkipAlreadyHasTrack}, nil
			}
		}
	}

	if outputPath, ok := PredictOutputPath(req.FilePath, req.TargetLanguage, settings); ok {
		if _, err := os.Stat(outputPath); err == nil {
			return Decision{Reason: apperr.SkipOutputExists}, nil
		}
	}

	if o.History != nil {
		if _, found, err := o.History.HasTranslation(ctx, req.FilePath, req.TargetLanguage); err != nil {
			return Decision{}, err
		} else if found {
			return Decision{Reason: apperr.SkipHistory}, nil
		}
	}

	if hasFilenameMarker(filepath.Base(req.FilePath), req.TargetLanguage) {
		return Decision{Reason: apperr.SkipFilenameMarker}, nil
	}

	if o.Active != nil && o.Active.HasActive(req.FilePath, req.TargetLanguage) {
		return Decision{Reason: apperr.SkipInProgress}, nil
	}

	return Decision{Proceed: true}, nil
}

// PredictOutputPath returns the path the Pipeline would write to for
// (filePath, targetLanguage) under settings, and whether the combination
// is one the Pipeline actually supports (an srt/ass source with an mkv
// output target is not: the Pipeline fails that case rather than writing
// anywhere, so there is nothing to predict). When overwriting the MKV
// in place, the Pipeline never writes a separate predictable path — the
// already_has_track check above is what catches a completed overwrite.
func PredictOutputPath(filePath, targetLanguage string, settings OutputSettings) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filePath))
	stem := strings.TrimSuffix(filePath, filepath.Ext(filePath))

	switch settings.SubtitleOutputFormat {
	case "mkv":
		if ext != ".mkv" || settings.OverwriteMKV {
			return "", false
		}
		return stem + ".translated.mkv", true
	case "ass":
		return stem + "." + targetLanguage + ".ass", true
	default:
		return stem + "." + targetLanguage + ".srt", true
	}
}

// hasFilenameMarker mirrors the original watcher's filename-marker
// heuristic: short tokens (<=2 chars) must appear punctuation-bounded to
// avoid matching inside ordinary words; longer tokens match anywhere.
func hasFilenameMarker(name, targetLanguage string) bool {
	lowerName := strings.ToLower(name)
	for _, token := range langalias.FilenameTokens(targetLanguage) {
		if token == "" {
			continue
		}
		if len(token) <= 2 {
			patterns := []string{
				"." + token + ".",
				"_" + token + ".",
				"-" + token + ".",
				"(" + token + ")",
				"[" + token + "]",
				" " + token + ".",
				"." + token + "-",
				"." + token + "_",
			}
			for _, p := range patterns {
				if strings.Contains(lowerName, p) {
					return true
				}
			}
		} else if strings.Contains(lowerName, token) {
			return true
		}
	}
	return false
}
