package video

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var errNoAudio = errors.New("video has no audio stream")

// FFmpeg runs the ffmpeg and ffprobe binaries found on PATH.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{ffmpegPath: "ffmpeg", ffprobePath: "ffprobe"}
}

// Available reports whether both binaries can be found.
func (f *FFmpeg) Available() bool {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(f.ffprobePath)
	return err == nil
}

func (f *FFmpeg) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", name, err, string(output))
	}
	return nil
}

func (f *FFmpeg) Duration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	raw := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("invalid duration %v", duration)
	}
	return duration, nil
}

func (f *FFmpeg) HasAudio(ctx context.Context, inputPath string) (bool, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		inputPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("ffprobe audio streams: %w", err)
	}
	return strings.TrimSpace(string(output)) != "", nil
}

// ImageThumbnail writes a 320x240 jpeg of the frame at one second.
func (f *FFmpeg) ImageThumbnail(ctx context.Context, inputPath, outputPath string) error {
	return f.run(ctx, "thumbnail",
		"-ss", "1",
		"-i", inputPath,
		"-frames:v", "1",
		"-s", "320x240",
		"-q:v", "5",
		"-y",
		outputPath,
	)
}

// Preview writes the first three seconds scaled to 640x360.
func (f *FFmpeg) Preview(ctx context.Context, inputPath, outputPath string) error {
	return f.run(ctx, "preview",
		"-i", inputPath,
		"-y",
		"-t", "3",
		"-ss", "00:00:00",
		"-s", "640x360",
		"-vf", "scale=640:360",
		"-f", "mp4",
		outputPath,
	)
}

// ExtractAudio writes a mono 16 kHz mp3. It returns errNoAudio when the
// input has no audio stream.
func (f *FFmpeg) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	ok, err := f.HasAudio(ctx, inputPath)
	if err != nil {
		return err
	}
	if !ok {
		return errNoAudio
	}
	return f.run(ctx, "audio extraction",
		"-i", inputPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "libmp3lame",
		"-y",
		outputPath,
	)
}
