package subtitle

import (
	"os"

	"github.com/mimelyc/subtrans/internal/apperr"
)

// DefaultWriter serializes a File back to disk in its own Format,
// honoring BilingualOptions for the emitted text.
type DefaultWriter struct {
	Bilingual BilingualOptions
}

// NewWriter creates a Writer with the given bilingual policy. Pass a
// zero BilingualOptions to always emit translated-only (or original,
// if untranslated) text.
func NewWriter(opts BilingualOptions) Writer {
	return &DefaultWriter{Bilingual: opts}
}

func (w *DefaultWriter) Write(path string, file *File) error {
	if file == nil {
		return apperr.NewCodecError("subtitle file is nil")
	}

	var content string
	switch file.Format {
	case FormatSRT:
		content = renderSRT(file.Units, w.Bilingual)
	case FormatASS:
		content = renderASS(file.Preamble, file.EventFormat, file.Units, w.Bilingual)
	default:
		return apperr.NewCodecError("unknown subtitle format: %q", file.Format)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return apperr.WrapCodecError(err, "write subtitle file %s", path)
	}
	return nil
}
