// Package mediatoolbox wraps the ffmpeg/ffprobe/mkvmerge/mkvextract binaries
// used to inspect and mutate container files: listing subtitle tracks,
// extracting one to a standalone file, and muxing a translated subtitle
// back into (or alongside) the source MKV.
package mediatoolbox

// Track describes one subtitle stream reported by ffprobe.
type Track struct {
	Index    int    // stream index within the container, as ffprobe reports it
	Codec    string // e.g. "subrip", "ass", "hdmv_pgs_subtitle"
	Language string // ISO-639-2 tag from the stream's language tag, "" if absent
	Title    string // stream title tag, if present
}

// graphicalCodecs are subtitle codecs that carry rendered bitmaps rather
// than text, so ffmpeg cannot transcode them to SRT/ASS.
var graphicalCodecs = map[string]bool{
	"hdmv_pgs_subtitle": true,
	"dvd_subtitle":      true,
}

// IsGraphical reports whether codec is a bitmap subtitle format that
// text extraction cannot handle.
func IsGraphical(codec string) bool {
	return graphicalCodecs[codec]
}
