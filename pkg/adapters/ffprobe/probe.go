// Package ffprobe implements ports.StreamProbe by shelling out to the
// ffprobe binary and parsing its JSON stream report.
package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/user/framecore/pkg/ports"
)

// ErrFFprobeNotFound is returned when the ffprobe binary cannot be
// located in PATH or in any common installation directory.
var ErrFFprobeNotFound = errors.New("ffprobe: binary not found")

// customFFprobePath overrides binary discovery when set via SetFFprobePath.
var customFFprobePath string

// SetFFprobePath overrides the binary used by FindFFprobe, for
// deployments that bundle their own ffprobe.
func SetFFprobePath(path string) {
	customFFprobePath = path
}

// FindFFprobe searches for ffprobe: a custom path set via
// SetFFprobePath, the FFPROBE_PATH environment variable, PATH, then a
// short list of common installation directories.
func FindFFprobe() (string, error) {
	if customFFprobePath != "" {
		if _, err := os.Stat(customFFprobePath); err == nil {
			return customFFprobePath, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFprobeNotFound, customFFprobePath)
	}

	if envPath := os.Getenv("FFPROBE_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFPROBE_PATH %s not found", ErrFFprobeNotFound, envPath)
	}

	execName := "ffprobe"
	if runtime.GOOS == "windows" {
		execName = "ffprobe.exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "windows":
		commonPaths = []string{
			`C:\ffmpeg\bin\ffprobe.exe`,
			`C:\Program Files\ffmpeg\bin\ffprobe.exe`,
		}
	case "darwin":
		commonPaths = []string{
			"/opt/homebrew/bin/ffprobe",
			"/usr/local/bin/ffprobe",
			"/usr/bin/ffprobe",
		}
	default:
		commonPaths = []string{
			"/usr/bin/ffprobe",
			"/usr/local/bin/ffprobe",
			"/opt/homebrew/bin/ffprobe",
			"/snap/bin/ffprobe",
		}
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrFFprobeNotFound
}

// Probe implements ports.StreamProbe.
type Probe struct{}

// New creates an ffprobe-backed stream probe.
func New() *Probe {
	return &Probe{}
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

// Probe runs ffprobe against path and extracts the first video stream's
// dimensions and frame rate plus the container's duration.
func (p *Probe) Probe(ctx context.Context, path string) (ports.StreamInfo, error) {
	ffprobePath, err := FindFFprobe()
	if err != nil {
		return ports.StreamInfo{}, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "v:0",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if exitErr := (*exec.ExitError)(nil); errors.As(err, &exitErr) {
			return ports.StreamInfo{}, fmt.Errorf("ffprobe: %w: %s", err, string(exitErr.Stderr))
		}
		return ports.StreamInfo{}, fmt.Errorf("ffprobe: %w", err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return ports.StreamInfo{}, fmt.Errorf("ffprobe: parse output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return ports.StreamInfo{}, fmt.Errorf("ffprobe: no video stream found in %s", path)
	}
	stream := parsed.Streams[0]

	info := ports.StreamInfo{
		Width:  stream.Width,
		Height: stream.Height,
	}
	if fr, ok := parseRational(stream.AvgFrameRate); ok && fr > 0 {
		info.FrameRate = fr
	} else if fr, ok := parseRational(stream.RFrameRate); ok {
		info.FrameRate = fr
	}

	if parsed.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}

	return info, nil
}

// parseRational parses ffprobe's "num/den" frame-rate notation.
func parseRational(s string) (float64, bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0, false
	}
	return num / den, true
}

var _ ports.StreamProbe = (*Probe)(nil)
