package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python, FFmpeg logs)
// This ensures we don't lose critical crash information if a child dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps child logs if a SafeCommand is provided.
// It does not exit; callers return the error up to cobra.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 BACKDROP ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nCHILD PROCESS LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// --- 2. Video Engine (capture and sink) ---

// StreamConfig describes one side of the raw I420 pipe.
type StreamConfig struct {
	Path   string
	Format string // ffmpeg -f value, e.g. "v4l2"; empty lets ffmpeg probe
	Width  int
	Height int
	FPS    float64
}

// IsDevice reports whether path names a capture or loopback device.
func IsDevice(path string) bool {
	return strings.HasPrefix(path, "/dev/")
}

// CaptureArgs builds the ffmpeg arguments that decode cfg.Path and emit raw
// yuv420p frames of exactly Width x Height on stdout. The picture is scaled to
// cover the target and centre-cropped, so the aspect ratio is preserved.
func CaptureArgs(cfg StreamConfig) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if cfg.Format != "" {
		args = append(args, "-f", cfg.Format)
	}
	if cfg.FPS > 0 && IsDevice(cfg.Path) {
		args = append(args, "-framerate", formatFPS(cfg.FPS))
	}
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", cfg.Width, cfg.Height, cfg.Width, cfg.Height)
	return append(args,
		"-i", cfg.Path,
		"-vf", vf,
		"-pix_fmt", "yuv420p",
		"-f", "rawvideo",
		"-",
	)
}

// SinkArgs builds the ffmpeg arguments that read raw yuv420p frames from stdin
// and write them to cfg.Path.
func SinkArgs(cfg StreamConfig) []string {
	fps := cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", formatFPS(fps),
		"-i", "-",
	}
	if cfg.Format != "" {
		args = append(args, "-f", cfg.Format)
	}
	if !IsDevice(cfg.Path) {
		args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv420p")
	}
	return append(args, cfg.Path)
}

// NewFFmpegCapture creates the decoder feeding raw frames into the pipeline.
func NewFFmpegCapture(ctx context.Context, cfg StreamConfig) *SafeCommand {
	return NewSafeCommand(ctx, "ffmpeg", CaptureArgs(cfg)...)
}

// NewFFmpegSink creates the encoder consuming composited frames.
func NewFFmpegSink(ctx context.Context, cfg StreamConfig) *SafeCommand {
	return NewSafeCommand(ctx, "ffmpeg", SinkArgs(cfg)...)
}

func formatFPS(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}

// GetTotalFrames uses ffprobe to count packets for the progress bar
// It returns 0 if the count fails or the input is a live device, allowing a fallback to a spinner.
func GetTotalFrames(ctx context.Context, path string) int {
	if IsDevice(path) {
		return 0
	}
	// 0. Check dependency
	if _, err := exec.LookPath("ffprobe"); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  ffprobe not found. Cannot provide a progress bar estimation because of this.\n")
		return 0
	}

	// 1. Fast Path: Check Container Metadata
	// This is instant but might return "N/A" or be inaccurate for VFR.
	cmdFast := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-show_entries", "stream=nb_frames", "-of", "json", path)
	if out, err := cmdFast.Output(); err == nil {
		if count := parseFrameCount(out); count > 0 {
			return count
		}
	}

	// 2. Slow Path: Count Packets (Fallback)
	fmt.Fprintf(os.Stderr, "⏳ Metadata missing. Counting frames (this may take a moment)...\n")
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", path)
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ffprobe failed: %v\n", err)
		return 0
	}
	return parseFrameCount(out)
}

// GetVideoFPS reads the average frame rate of the first video stream.
func GetVideoFPS(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate", "-of", "json", path).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	var res struct {
		Streams []struct {
			AvgFrameRate string `json:"avg_frame_rate"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return 0, fmt.Errorf("no video stream in %s", path)
	}
	return ParseRate(res.Streams[0].AvgFrameRate)
}

// ParseRate parses an ffprobe rational such as "30000/1001".
func ParseRate(s string) (float64, error) {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	return n / d, nil
}

// parseFrameCount extracts nb_frames or nb_read_packets from ffprobe JSON output.
func parseFrameCount(out []byte) int {
	var res struct {
		Streams []struct {
			NbFrames      string `json:"nb_frames"`
			NbReadPackets string `json:"nb_read_packets"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &res); err != nil || len(res.Streams) == 0 {
		return 0
	}
	for _, v := range []string{res.Streams[0].NbFrames, res.Streams[0].NbReadPackets} {
		if count, err := strconv.Atoi(v); err == nil && count > 0 {
			return count
		}
	}
	return 0
}
