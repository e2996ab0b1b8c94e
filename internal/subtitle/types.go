package subtitle

import (
	"time"

	"golang.org/x/text/language"
)

// Format identifies a subtitle container format. Detection is by file
// extension only; an unrecognized extension is a CodecError, never a
// guess.
type Format string

const (
	FormatSRT Format = "SRT"
	FormatASS Format = "ASS"
)

// Reader parses subtitle content into an ordered list of dialogue
// units. DefaultReader and DefaultWriter round-trip an untranslated
// file's dialogue, timing and ASS headers, but not every byte: line
// endings are written as "\n", a byte-order mark is dropped, SRT lines
// lose leading and trailing spaces, extra blank lines between or after
// entries are not kept, and ASS non-Dialogue lines that follow the
// [Events] "Format:" line are written back ahead of all Dialogue lines.
type Reader interface {
	Read() (*File, error)
}

// Writer serializes a File back to bytes on disk.
type Writer interface {
	Write(path string, file *File) error
}

// DialogueUnit is one timecoded subtitle entry. StyleMeta carries
// format-specific formatting fields (ASS's Style/Name/Margin*/Effect
// columns) opaque to translation: they pass through unmodified.
type DialogueUnit struct {
	Index          int
	StartTime      time.Duration
	EndTime        time.Duration
	Text           string
	TranslatedText string
	StyleMeta      map[string]string
}

// EffectiveText returns TranslatedText when set, else the original.
func (u DialogueUnit) EffectiveText() string {
	if u.TranslatedText != "" {
		return u.TranslatedText
	}
	return u.Text
}

// File is a parsed subtitle document.
type File struct {
	Units    []DialogueUnit
	Language language.Tag
	Format   Format
	Path     string

	// Preamble holds format headers written back unmodified: for ASS,
	// everything up to and including the "[Events]" section's "Format:"
	// line, verbatim, followed by every later non-Dialogue line (such as
	// Comment: lines), with trailing blank lines trimmed; for SRT, unused.
	Preamble string

	// EventFormat is the comma-separated column order declared by ASS's
	// "Format:" line (e.g. "Layer","Start","End","Style",...,"Text"),
	// used to serialize each DialogueUnit.StyleMeta back in the same
	// column order it was read in. Unused for SRT.
	EventFormat []string
}

// BilingualOptions controls the bilingual composition step in the
// Pipeline's ASSEMBLING state.
type BilingualOptions struct {
	Enabled bool
	// Separator joins translated and original text. "" defaults to the
	// format-appropriate newline: "\n" for SRT, "\N" for ASS.
	Separator string
	// TranslatedFirst controls ordering; default true (translated on
	// top, original beneath).
	TranslatedFirst bool
}

// ComposeBilingual returns the text to write for one unit under the
// given bilingual policy, or the effective single-language text when
// bilingual output is disabled.
func ComposeBilingual(u DialogueUnit, format Format, opts BilingualOptions) string {
	if !opts.Enabled || u.TranslatedText == "" {
		return u.EffectiveText()
	}

	sep := opts.Separator
	if sep == "" {
		sep = defaultLineSeparator(format)
	}

	first, second := u.TranslatedText, u.Text
	if !opts.TranslatedFirst {
		first, second = second, first
	}
	return first + sep + second
}

func defaultLineSeparator(format Format) string {
	if format == FormatASS {
		return `\N`
	}
	return "\n"
}

// DetectFormat maps a file extension to a Format, or "" if unrecognized.
func DetectFormat(ext string) Format {
	switch normalizeExt(ext) {
	case ".srt":
		return FormatSRT
	case ".ass", ".ssa":
		return FormatASS
	default:
		return ""
	}
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ext
	}
	if ext[0] != '.' {
		return "." + ext
	}
	return ext
}
