package mediatoolbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mimelyc/subtrans/internal/apperr"
	"github.com/mimelyc/subtrans/pkg/file"
	"github.com/mimelyc/subtrans/pkg/log"
)

// Toolbox is the Media Toolbox contract: everything the pipeline needs
// from the external ffmpeg/ffprobe/mkvmerge/mkvextract binaries.
type Toolbox interface {
	ListTracks(ctx context.Context, mediaPath string) ([]Track, error)
	ExtractTrack(ctx context.Context, mediaPath string, track Track, outPath string) error
	MergeSubtitle(ctx context.Context, videoPath, subtitlePath, outPath, language, trackName string, makeDefault bool) error
	ReplaceInPlace(ctx context.Context, videoPath, subtitlePath, language, trackName string, makeDefault bool) error
}

// FFToolbox is the default Toolbox backed by the system ffmpeg/ffprobe and,
// for MKV muxing, mkvmerge/mkvextract.
type FFToolbox struct {
	FfmpegBin     string
	FfprobeBin    string
	MkvmergeBin   string
	MkvextractBin string
}

// NewFFToolbox builds a Toolbox from the configured binary names/paths.
func NewFFToolbox(ffmpegBin, ffprobeBin, mkvmergeBin, mkvextractBin string) *FFToolbox {
	return &FFToolbox{
		FfmpegBin:     ffmpegBin,
		FfprobeBin:    ffprobeBin,
		MkvmergeBin:   mkvmergeBin,
		MkvextractBin: mkvextractBin,
	}
}

type probeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	Tags      struct {
		Language string `json:"language"`
		Title    string `json:"title"`
	} `json:"tags"`
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
}

// ListTracks returns every subtitle stream in mediaPath, in ffprobe order.
func (t *FFToolbox) ListTracks(ctx context.Context, mediaPath string) ([]Track, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "s",
		mediaPath,
	}
	out, err := t.run(ctx, t.FfprobeBin, args...)
	if err != nil {
		return nil, err
	}

	var parsed probeResult
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, apperr.WrapCodecError(err, "parsing ffprobe output for %s", mediaPath)
	}

	tracks := make([]Track, 0, len(parsed.Streams))
	for _, s := range parsed.Streams {
		tracks = append(tracks, Track{
			Index:    s.Index,
			Codec:    s.CodecName,
			Language: s.Tags.Language,
			Title:    s.Tags.Title,
		})
	}
	return tracks, nil
}

// ExtractTrack pulls one subtitle track out of mediaPath and writes it to
// outPath in its native text format: SRT for SubRip-coded tracks, ASS for
// ASS/SSA-coded ones. Graphical tracks (PGS/VobSub) are rejected up front
// since ffmpeg cannot transcode bitmap subtitles to text.
func (t *FFToolbox) ExtractTrack(ctx context.Context, mediaPath string, track Track, outPath string) error {
	if IsGraphical(track.Codec) {
		return apperr.NewUserError("subtitle track %d is a graphical format (%s) and cannot be translated", track.Index, track.Codec)
	}

	streamOrdinal, err := t.subtitleStreamOrdinal(ctx, mediaPath, track.Index)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return apperr.WrapCodecError(err, "creating output directory for %s", outPath)
	}

	codec, format := "srt", "srt"
	if track.Codec == "ass" || track.Codec == "ssa" {
		codec, format = "ass", "ass"
	}

	args := []string{
		"-y",
		"-i", mediaPath,
		"-map", fmt.Sprintf("0:s:%d", streamOrdinal),
		"-c:s", codec,
		"-f", format,
		outPath,
	}
	_, err = t.run(ctx, t.FfmpegBin, args...)
	return err
}

// subtitleStreamOrdinal maps an absolute ffprobe stream index to its
// position among subtitle-only streams, which is what ffmpeg's "-map
// 0:s:N" selector expects.
func (t *FFToolbox) subtitleStreamOrdinal(ctx context.Context, mediaPath string, absoluteIndex int) (int, error) {
	tracks, err := t.ListTracks(ctx, mediaPath)
	if err != nil {
		return 0, err
	}
	for i, tr := range tracks {
		if tr.Index == absoluteIndex {
			return i, nil
		}
	}
	return 0, apperr.NewUserError("subtitle track %d not found in %s", absoluteIndex, mediaPath)
}

// MergeSubtitle muxes subtitlePath into videoPath as a new track, writing
// the result to outPath. mkvmerge exits 1 for warnings-only runs, which is
// treated as success.
func (t *FFToolbox) MergeSubtitle(ctx context.Context, videoPath, subtitlePath, outPath, language, trackName string, makeDefault bool) error {
	if trackName == "" {
		trackName = fmt.Sprintf("Translated (%s)", language)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return apperr.WrapCodecError(err, "creating output directory for %s", outPath)
	}

	args := []string{
		"-o", outPath,
		videoPath,
		"--language", "0:" + language,
		"--track-name", "0:" + trackName,
	}
	if makeDefault {
		args = append(args, "--default-track-flag", "0:yes")
	}
	args = append(args, subtitlePath)

	_, err := t.runAcceptingExitCodes(ctx, t.MkvmergeBin, []int{0, 1}, args...)
	return err
}

// ReplaceInPlace merges subtitlePath into videoPath and atomically swaps
// the result onto videoPath itself, tolerating a cross-filesystem scratch
// directory via RenameCrossDevice.
func (t *FFToolbox) ReplaceInPlace(ctx context.Context, videoPath, subtitlePath, language, trackName string, makeDefault bool) error {
	tmpOut := videoPath + ".merging.mkv"
	if err := t.MergeSubtitle(ctx, videoPath, subtitlePath, tmpOut, language, trackName, makeDefault); err != nil {
		_ = os.Remove(tmpOut)
		return err
	}
	if err := file.RenameCrossDevice(tmpOut, videoPath); err != nil {
		_ = os.Remove(tmpOut)
		return apperr.WrapCodecError(err, "replacing %s with merged output", videoPath)
	}
	return nil
}

func (t *FFToolbox) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return t.runAcceptingExitCodes(ctx, bin, []int{0}, args...)
}

func (t *FFToolbox) runAcceptingExitCodes(ctx context.Context, bin string, okCodes []int, args ...string) ([]byte, error) {
	cmdPath, err := exec.LookPath(bin)
	if err != nil {
		return nil, apperr.NewUserError("required tool %q is not installed or not on PATH", bin)
	}

	cmd := exec.CommandContext(ctx, cmdPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil {
		return nil, apperr.NewToolError(bin, tail(stderr.String(), 1024), -1, runErr)
	}

	for _, code := range okCodes {
		if exitCode == code {
			return stdout.Bytes(), nil
		}
	}

	log.Error("%s exited %d: %s", bin, exitCode, tail(stderr.String(), 500))
	return nil, apperr.NewToolError(bin, tail(stderr.String(), 1024), exitCode, runErr)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
