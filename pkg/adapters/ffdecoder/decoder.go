// Package ffdecoder implements ports.DecoderDriver by spawning an
// ffmpeg child process per call and reading its raw BGRA pipe output.
package ffdecoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/user/framecore/pkg/adapters/framesink"
	"github.com/user/framecore/pkg/frame"
	"github.com/user/framecore/pkg/ports"
)

// ErrFFmpegNotFound is returned when the ffmpeg binary cannot be located.
var ErrFFmpegNotFound = errors.New("ffdecoder: ffmpeg not found in PATH")

// ErrTruncatedFrame is returned when the decoder child exits before a
// single requested frame is fully written. Cancellation is reported as
// the context's own error instead.
var ErrTruncatedFrame = errors.New("ffdecoder: truncated frame")

var customFFmpegPath string

// SetFFmpegPath overrides binary discovery for deployments that bundle
// their own ffmpeg.
func SetFFmpegPath(path string) {
	customFFmpegPath = path
}

// FindFFmpeg searches for ffmpeg: a custom path set via SetFFmpegPath,
// the FFMPEG_PATH environment variable, PATH, then a short list of
// common installation directories.
func FindFFmpeg() (string, error) {
	if customFFmpegPath != "" {
		if _, err := os.Stat(customFFmpegPath); err == nil {
			return customFFmpegPath, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, customFFmpegPath)
	}

	if envPath := os.Getenv("FFMPEG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH %s not found", ErrFFmpegNotFound, envPath)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "windows":
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
		}
	case "darwin":
		commonPaths = []string{
			"/opt/homebrew/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/usr/bin/ffmpeg",
		}
	default:
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/opt/homebrew/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrFFmpegNotFound
}

const (
	minReadBuffer = 256 * 1024
	maxReadBuffer = 8 * 1024 * 1024
)

// readBufferSize clamps the pipe-block read size to [256 KiB, 8 MiB],
// tuned to one frame's size to minimize syscalls per frame.
func readBufferSize(frameSize int) int {
	switch {
	case frameSize < minReadBuffer:
		return minReadBuffer
	case frameSize > maxReadBuffer:
		return maxReadBuffer
	default:
		return frameSize
	}
}

// Decoder is a ports.DecoderDriver backed by ffmpeg child processes.
// Input geometry is fixed once at construction; it comes from the
// stream probe and never changes over a session's lifetime.
type Decoder struct {
	sourcePath    string
	width         int
	height        int
	frameDuration time.Duration
	pool          ports.BitmapPool
	hwaccel       string // ffmpeg -hwaccel value; "" disables hardware decoding
	log           ports.Logger
}

// Option configures a Decoder at construction.
type Option func(*Decoder)

// WithHardwareAccel enables a runtime fallback attempt using the given
// ffmpeg -hwaccel argument (e.g. "videotoolbox", "cuda", "qsv") before
// falling back to software decoding.
func WithHardwareAccel(api string) Option {
	return func(d *Decoder) { d.hwaccel = api }
}

// WithLogger attaches a component logger.
func WithLogger(log ports.Logger) Option {
	return func(d *Decoder) { d.log = log }
}

// New creates a Decoder for the given source file, fixed geometry and
// frame duration (1/frame_rate), and bitmap pool.
func New(sourcePath string, width, height int, frameDuration time.Duration, pool ports.BitmapPool, opts ...Option) *Decoder {
	d := &Decoder{
		sourcePath:    sourcePath,
		width:         width,
		height:        height,
		frameDuration: frameDuration,
		pool:          pool,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ ports.DecoderDriver = (*Decoder)(nil)

// buildArgs constructs the ffmpeg argument list for a seek-and-emit
// decode starting at t: input seek before -i for fast seeking, raw BGRA
// to stdout, no audio/subtitle/data streams. singleFrame caps output at
// exactly one frame; otherwise a non-nil maxLength bounds the decode in
// media time and nil means continuous.
func (d *Decoder) buildArgs(t time.Duration, maxLength *time.Duration, singleFrame bool, hwaccel string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if hwaccel != "" {
		args = append(args, "-hwaccel", hwaccel)
	}
	args = append(args,
		"-ss", formatSeconds(t),
		"-i", d.sourcePath,
	)
	if singleFrame {
		args = append(args, "-frames:v", "1")
	} else if maxLength != nil {
		args = append(args, "-t", formatSeconds(*maxLength))
	}
	args = append(args,
		"-f", "rawvideo",
		"-preset", "ultrafast",
		"-pix_fmt", "bgra",
		"-an", "-sn", "-dn",
		"-s", fmt.Sprintf("%dx%d", d.width, d.height),
		"pipe:1",
	)
	return args
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.6f", d.Seconds())
}

// GetSingleFrame implements ports.DecoderDriver.
func (d *Decoder) GetSingleFrame(ctx context.Context, t time.Duration) (*frame.Frame, error) {
	fr, err := d.runSingle(ctx, t, d.hwaccel)
	if err != nil && d.hwaccel != "" && !errors.Is(err, context.Canceled) {
		if d.log != nil {
			d.log.Warn("hardware decode failed, retrying with software: %s", err.Error())
		}
		fr, err = d.runSingle(ctx, t, "")
	}
	return fr, err
}

func (d *Decoder) runSingle(ctx context.Context, t time.Duration, hwaccel string) (*frame.Frame, error) {
	ffmpegPath, err := FindFFmpeg()
	if err != nil {
		return nil, err
	}

	sink := framesink.NewSingleFrame(d.pool)
	defer sink.Close()

	args := d.buildArgs(t, nil, true, hwaccel)
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffdecoder: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffdecoder: start: %w", err)
	}

	frameSize := d.width * d.height * 4
	buf := make([]byte, readBufferSize(frameSize))
	reader := bufio.NewReaderSize(stdout, len(buf))
	copyErr := copyUntil(reader, sink, buf, sink.HasFrame)

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if copyErr != nil && copyErr != io.EOF {
		return nil, fmt.Errorf("ffdecoder: read pipe: %w", copyErr)
	}
	if !sink.HasFrame() {
		if waitErr != nil {
			return nil, fmt.Errorf("ffdecoder: %w: exit error: %v: %s", ErrTruncatedFrame, waitErr, stderr.String())
		}
		return nil, fmt.Errorf("%w: got %d of %d bytes: %s", ErrTruncatedFrame, sink.BytesWritten(), frameSize, stderr.String())
	}

	buffer, ok := sink.TakeBuffer()
	if !ok {
		return nil, ErrTruncatedFrame
	}
	return frame.New(d.sourcePath, t, d.width, d.height, buffer, d.pool.Return), nil
}

// copyUntil copies from r into w in buf-sized chunks until done reports
// true, an error occurs, or EOF.
func copyUntil(r io.Reader, w io.Writer, buf []byte, done func() bool) error {
	for !done() {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// DecodeRange implements ports.DecoderDriver. The hardware-then-software
// retry-once rule applies only to process start failure; once frames
// have begun streaming, a mid-stream failure surfaces as an error on
// errCh without a retry; the caller (the sequential decode worker)
// already has its own restart policy for that case.
func (d *Decoder) DecodeRange(ctx context.Context, start time.Duration, maxLength *time.Duration) (<-chan *frame.Frame, <-chan error) {
	errCh := make(chan error, 1)

	ffmpegPath, err := FindFFmpeg()
	if err != nil {
		errCh <- err
		close(errCh)
		frames := make(chan *frame.Frame)
		close(frames)
		return frames, errCh
	}

	hwaccel := d.hwaccel
	cmd, stdout, stderr, startErr := d.spawn(ctx, ffmpegPath, start, maxLength, hwaccel)
	if startErr != nil && hwaccel != "" {
		if d.log != nil {
			d.log.Warn("hardware decode failed, retrying with software: %s", startErr.Error())
		}
		cmd, stdout, stderr, startErr = d.spawn(ctx, ffmpegPath, start, maxLength, "")
	}
	if startErr != nil {
		errCh <- startErr
		close(errCh)
		frames := make(chan *frame.Frame)
		close(frames)
		return frames, errCh
	}

	sink := framesink.NewChunk(ctx, d.pool, d.sourcePath, start, d.frameDuration)
	frameSize := d.width * d.height * 4
	buf := make([]byte, readBufferSize(frameSize))

	go func() {
		defer close(errCh)
		defer sink.Close()

		reader := bufio.NewReaderSize(stdout, len(buf))
		_, copyErr := io.CopyBuffer(sink, reader, buf)
		waitErr := cmd.Wait()

		switch {
		case ctx.Err() != nil:
			errCh <- ctx.Err()
		case copyErr != nil && copyErr != io.EOF:
			errCh <- fmt.Errorf("ffdecoder: read pipe: %w", copyErr)
		case waitErr != nil:
			errCh <- fmt.Errorf("ffdecoder: exit error: %w: %s", waitErr, stderr.String())
		default:
			errCh <- nil
		}
	}()

	return sink.Frames(), errCh
}

func (d *Decoder) spawn(ctx context.Context, ffmpegPath string, start time.Duration, maxLength *time.Duration, hwaccel string) (*exec.Cmd, io.ReadCloser, *bytes.Buffer, error) {
	args := d.buildArgs(start, maxLength, false, hwaccel)
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ffdecoder: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("ffdecoder: start: %w", err)
	}
	return cmd, stdout, stderr, nil
}

// Close implements ports.DecoderDriver. The driver holds no resources
// beyond per-call child processes, which own their own lifecycle.
func (d *Decoder) Close() error { return nil }
