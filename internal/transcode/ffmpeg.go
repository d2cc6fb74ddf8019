package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Rendition is one rung of the HLS bitrate ladder.
type Rendition struct {
	Width        int
	Height       int
	VideoBitrate string
	AudioBitrate string
}

// DefaultLadder covers the common 360p/480p/720p adaptive set.
func DefaultLadder() []Rendition {
	return []Rendition{
		{Width: 1280, Height: 720, VideoBitrate: "2800k", AudioBitrate: "128k"},
		{Width: 854, Height: 480, VideoBitrate: "1400k", AudioBitrate: "128k"},
		{Width: 640, Height: 360, VideoBitrate: "800k", AudioBitrate: "96k"},
	}
}

// FFmpeg produces a multi-variant HLS tree next to the source file:
// master.m3u8 plus one v<N>/ directory per rendition holding its playlist
// and segments.
type FFmpeg struct {
	BinaryPath     string
	SegmentSeconds int
	Ladder         []Rendition
}

func NewFFmpeg(binaryPath string, segmentSeconds int) *FFmpeg {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	if segmentSeconds <= 0 {
		segmentSeconds = 6
	}
	return &FFmpeg{
		BinaryPath:     binaryPath,
		SegmentSeconds: segmentSeconds,
		Ladder:         DefaultLadder(),
	}
}

// Transcode runs a single ffmpeg invocation over the source file. The output
// directory is the directory containing sourcePath.
func (f *FFmpeg) Transcode(ctx context.Context, sourcePath string) (string, error) {
	outputDir := filepath.Dir(sourcePath)

	for i := range f.Ladder {
		if err := os.MkdirAll(filepath.Join(outputDir, variantDir(i)), 0o755); err != nil {
			return "", err
		}
	}

	cmd := exec.CommandContext(ctx, f.BinaryPath, f.buildArgs(filepath.Base(sourcePath))...)
	// Playlist paths in the args are relative so the master manifest
	// references variants as v0/playlist.m3u8, not absolute paths.
	cmd.Dir = outputDir

	output, err := runCommand(cmd)
	if err != nil {
		if output == "" {
			return "", fmt.Errorf("ffmpeg failed: %w", err)
		}
		return "", fmt.Errorf("ffmpeg failed: %w: %s", err, output)
	}
	return outputDir, nil
}

func (f *FFmpeg) buildArgs(sourceName string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", sourceName,
	}

	for range f.Ladder {
		args = append(args, "-map", "0:v:0", "-map", "0:a:0?")
	}

	for i, r := range f.Ladder {
		args = append(args,
			fmt.Sprintf("-filter:v:%d", i), fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease", r.Width, r.Height),
			fmt.Sprintf("-c:v:%d", i), "libx264",
			fmt.Sprintf("-b:v:%d", i), r.VideoBitrate,
			fmt.Sprintf("-c:a:%d", i), "aac",
			fmt.Sprintf("-b:a:%d", i), r.AudioBitrate,
		)
	}

	args = append(args,
		"-preset", "veryfast",
		"-sc_threshold", "0",
		"-ar", "48000",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", f.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_segment_filename", "v%v/segment%03d.ts",
		"-master_pl_name", "master.m3u8",
		"-var_stream_map", f.streamMap(),
		"v%v/playlist.m3u8",
	)
	return args
}

func (f *FFmpeg) streamMap() string {
	pairs := make([]string, len(f.Ladder))
	for i := range f.Ladder {
		pairs[i] = fmt.Sprintf("v:%d,a:%d", i, i)
	}
	return strings.Join(pairs, " ")
}

func variantDir(i int) string {
	return fmt.Sprintf("v%d", i)
}

func runCommand(cmd *exec.Cmd) (string, error) {
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	out := strings.TrimSpace(buf.String())
	out = truncate(out, 800)
	return out, err
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
