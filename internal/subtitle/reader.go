package subtitle

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"

	"github.com/mimelyc/subtrans/internal/apperr"
)

// DefaultReader reads an SRT or ASS/SSA file from disk, detecting its
// format from the file extension and its character encoding from any
// BOM present.
type DefaultReader struct {
	path string
}

// NewReader creates a Reader bound to path.
func NewReader(path string) Reader {
	return &DefaultReader{path: path}
}

func (r *DefaultReader) Read() (*File, error) {
	format := DetectFormat(filepath.Ext(r.path))
	if format == "" {
		return nil, apperr.NewCodecError("unsupported subtitle extension: %s", r.path)
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NewUserError("subtitle file does not exist: %s", r.path)
		}
		return nil, apperr.WrapCodecError(err, "read subtitle file %s", r.path)
	}

	return parseFile(raw, r.path, format)
}

// ReadBytes parses subtitle content already in memory, such as the
// output of an mkvextract/ffmpeg extraction step that never touches
// disk under its final path.
func ReadBytes(raw []byte, path string) (*File, error) {
	format := DetectFormat(filepath.Ext(path))
	if format == "" {
		return nil, apperr.NewCodecError("unsupported subtitle extension: %s", path)
	}
	return parseFile(raw, path, format)
}

func parseFile(raw []byte, path string, format Format) (*File, error) {
	text, err := decodeText(raw)
	if err != nil {
		return nil, apperr.WrapCodecError(err, "decode subtitle file %s", path)
	}

	file := &File{Format: format, Path: path}

	switch format {
	case FormatSRT:
		units, err := parseSRT(text)
		if err != nil {
			return nil, err
		}
		file.Units = units
	case FormatASS:
		preamble, eventFormat, units, err := parseASS(text)
		if err != nil {
			return nil, err
		}
		file.Preamble = preamble
		file.EventFormat = eventFormat
		file.Units = units
	}

	file.Language = detectLanguage(file.Units)
	return file, nil
}

// detectLanguage runs a lightweight per-line heuristic (whatlanggo) and
// returns the most common detected language across all units. The
// Pipeline uses it as the prompt's source language when a task's
// source language is empty or "auto".
func detectLanguage(units []DialogueUnit) language.Tag {
	if len(units) == 0 {
		return language.Und
	}

	counts := make(map[string]int)
	for _, u := range units {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		lang := whatlanggo.DetectLang(text).Iso6391()
		counts[lang]++
	}

	var top string
	var topCount int
	for lang, count := range counts {
		if count > topCount {
			top, topCount = lang, count
		}
	}
	if top == "" {
		return language.Und
	}
	return language.Make(top)
}
