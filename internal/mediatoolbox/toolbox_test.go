package mediatoolbox

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeBin drops a shell script named name into dir that echoes
// stdout and exits with code, used to fake out ffprobe/ffmpeg/mkvmerge
// binaries without invoking the real tools.
func writeFakeBin(t *testing.T, dir, name, stdout string, code int) {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\ncat <<'EOF'\n" + stdout + "\nEOF\nexit " + strconv.Itoa(code) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
}

// writeFakeMkvmerge drops a fake mkvmerge that actually creates the file
// named by its "-o" argument, since ReplaceInPlace renames that output.
func writeFakeMkvmerge(t *testing.T, dir string, code int) {
	t.Helper()
	script := "#!/bin/sh\n" +
		"while [ \"$#\" -gt 0 ]; do\n" +
		"  if [ \"$1\" = \"-o\" ]; then touch \"$2\"; fi\n" +
		"  shift\n" +
		"done\n" +
		"exit " + strconv.Itoa(code) + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mkvmerge"), []byte(script), 0o755))
}

// writeFakeFfmpegRecordingArgs drops a fake ffmpeg that appends its
// argument list to recordPath and exits 0, so a test can assert on the
// codec/format flags ExtractTrack chose.
func writeFakeFfmpegRecordingArgs(t *testing.T, dir, recordPath string) {
	t.Helper()
	script := "#!/bin/sh\necho \"$@\" >> \"" + recordPath + "\"\nexit 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte(script), 0o755))
}

func withFakePath(t *testing.T, dir string) {
	t.Helper()
	original := os.Getenv("PATH")
	os.Setenv("PATH", dir+string(os.PathListSeparator)+original)
	t.Cleanup(func() { os.Setenv("PATH", original) })
}

func TestListTracks(t *testing.T) {
	dir := t.TempDir()
	writeFakeBin(t, dir, "ffprobe", `{
		"streams": [
			{"index": 2, "codec_name": "subrip", "tags": {"language": "eng", "title": "English"}},
			{"index": 3, "codec_name": "hdmv_pgs_subtitle", "tags": {"language": "jpn"}}
		]
	}`, 0)
	withFakePath(t, dir)

	tb := NewFFToolbox("ffmpeg", "ffprobe", "mkvmerge", "mkvextract")
	tracks, err := tb.ListTracks(context.Background(), "movie.mkv")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, 2, tracks[0].Index)
	assert.Equal(t, "subrip", tracks[0].Codec)
	assert.Equal(t, "eng", tracks[0].Language)
	assert.True(t, IsGraphical(tracks[1].Codec))
}

func TestExtractTrackRejectsGraphical(t *testing.T) {
	dir := t.TempDir()
	writeFakeBin(t, dir, "ffprobe", `{"streams": [{"index": 0, "codec_name": "hdmv_pgs_subtitle"}]}`, 0)
	withFakePath(t, dir)

	tb := NewFFToolbox("ffmpeg", "ffprobe", "mkvmerge", "mkvextract")
	err := tb.ExtractTrack(context.Background(), "movie.mkv", Track{Index: 0, Codec: "hdmv_pgs_subtitle"}, filepath.Join(t.TempDir(), "out.srt"))
	require.Error(t, err)
}

func TestExtractTrackMapsOrdinal(t *testing.T) {
	dir := t.TempDir()
	writeFakeBin(t, dir, "ffprobe", `{
		"streams": [
			{"index": 2, "codec_name": "ass", "tags": {"language": "jpn"}},
			{"index": 5, "codec_name": "subrip", "tags": {"language": "eng"}}
		]
	}`, 0)
	writeFakeBin(t, dir, "ffmpeg", "", 0)
	withFakePath(t, dir)

	tb := NewFFToolbox("ffmpeg", "ffprobe", "mkvmerge", "mkvextract")
	outPath := filepath.Join(t.TempDir(), "out.srt")
	err := tb.ExtractTrack(context.Background(), "movie.mkv", Track{Index: 5, Codec: "subrip"}, outPath)
	require.NoError(t, err)
}

func TestExtractTrackUsesNativeFormatForASS(t *testing.T) {
	dir := t.TempDir()
	writeFakeBin(t, dir, "ffprobe", `{"streams": [{"index": 0, "codec_name": "ass"}]}`, 0)
	record := filepath.Join(t.TempDir(), "ffmpeg-args.txt")
	writeFakeFfmpegRecordingArgs(t, dir, record)
	withFakePath(t, dir)

	tb := NewFFToolbox("ffmpeg", "ffprobe", "mkvmerge", "mkvextract")
	err := tb.ExtractTrack(context.Background(), "movie.mkv", Track{Index: 0, Codec: "ass"}, filepath.Join(t.TempDir(), "out.ass"))
	require.NoError(t, err)

	args, readErr := os.ReadFile(record)
	require.NoError(t, readErr)
	assert.Contains(t, string(args), "-c:s ass -f ass")
}

func TestExtractTrackUsesNativeFormatForSRT(t *testing.T) {
	dir := t.TempDir()
	writeFakeBin(t, dir, "ffprobe", `{"streams": [{"index": 0, "codec_name": "subrip"}]}`, 0)
	record := filepath.Join(t.TempDir(), "ffmpeg-args.txt")
	writeFakeFfmpegRecordingArgs(t, dir, record)
	withFakePath(t, dir)

	tb := NewFFToolbox("ffmpeg", "ffprobe", "mkvmerge", "mkvextract")
	err := tb.ExtractTrack(context.Background(), "movie.mkv", Track{Index: 0, Codec: "subrip"}, filepath.Join(t.TempDir(), "out.srt"))
	require.NoError(t, err)

	args, readErr := os.ReadFile(record)
	require.NoError(t, readErr)
	assert.Contains(t, string(args), "-c:s srt -f srt")
}

func TestMergeSubtitleAcceptsWarningExitCode(t *testing.T) {
	dir := t.TempDir()
	writeFakeBin(t, dir, "mkvmerge", "warning: something harmless", 1)
	withFakePath(t, dir)

	tb := NewFFToolbox("ffmpeg", "ffprobe", "mkvmerge", "mkvextract")
	outPath := filepath.Join(t.TempDir(), "out.mkv")
	err := tb.MergeSubtitle(context.Background(), "movie.mkv", "sub.srt", outPath, "chi", "", false)
	require.NoError(t, err)
}

func TestMergeSubtitleFailsOnHardError(t *testing.T) {
	dir := t.TempDir()
	writeFakeBin(t, dir, "mkvmerge", "error: bad input", 2)
	withFakePath(t, dir)

	tb := NewFFToolbox("ffmpeg", "ffprobe", "mkvmerge", "mkvextract")
	outPath := filepath.Join(t.TempDir(), "out.mkv")
	err := tb.MergeSubtitle(context.Background(), "movie.mkv", "sub.srt", outPath, "chi", "", false)
	require.Error(t, err)
}

func TestReplaceInPlace(t *testing.T) {
	dir := t.TempDir()
	writeFakeMkvmerge(t, dir, 0)
	withFakePath(t, dir)

	video := filepath.Join(t.TempDir(), "movie.mkv")
	require.NoError(t, os.WriteFile(video, []byte("original"), 0o644))

	tb := NewFFToolbox("ffmpeg", "ffprobe", "mkvmerge", "mkvextract")
	err := tb.ReplaceInPlace(context.Background(), video, "sub.srt", "chi", "", false)
	require.NoError(t, err)

	_, statErr := os.Stat(video + ".merging.mkv")
	assert.True(t, os.IsNotExist(statErr))
}

func TestMissingBinary(t *testing.T) {
	emptyDir := t.TempDir()
	withFakePath(t, emptyDir)
	os.Setenv("PATH", emptyDir)

	tb := NewFFToolbox("ffmpeg-does-not-exist", "ffprobe-does-not-exist", "mkvmerge", "mkvextract")
	_, err := tb.ListTracks(context.Background(), "movie.mkv")
	require.Error(t, err)
}
