package subtitle

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
)

// decodeText converts raw subtitle bytes to a UTF-8 string, handling the
// BOM-tagged encodings mkv/media tooling actually emits (UTF-8 with BOM,
// UTF-16 LE/BE with BOM). Bytes with no recognizable BOM are assumed to
// already be UTF-8, matching the common case for subtitles authored or
// re-encoded by ffmpeg.
func decodeText(raw []byte) (string, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return string(bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})), nil
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		return decodeUTF16(raw, unicode.LittleEndian)
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		return decodeUTF16(raw, unicode.BigEndian)
	default:
		return string(raw), nil
	}
}

func decodeUTF16(raw []byte, order unicode.Endianness) (string, error) {
	decoder := unicode.UTF16(order, unicode.ExpectBOM).NewDecoder()
	out, err := decoder.Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
