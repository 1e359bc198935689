package ports

import (
	"context"
	"time"

	"github.com/user/framecore/pkg/frame"
)

// DecoderDriver hides the external decoder child process behind two
// operations: a single-frame extraction and a continuous, cancellable
// range decode.
type DecoderDriver interface {
	// GetSingleFrame launches a decoder seeked to t and returns exactly
	// one frame, or an error if the process fails to produce a complete
	// frame (non-zero exit, truncated output, cancellation).
	GetSingleFrame(ctx context.Context, t time.Duration) (*frame.Frame, error)

	// DecodeRange launches a decoder seeked to start producing frames
	// until maxLength elapses in media time (nil means unbounded), the
	// stream ends, or ctx is cancelled. The returned channel is closed
	// when the stream ends; errCh receives at most one error (nil on a
	// clean end) and is then closed. The consumer must drain the frame
	// channel to completion, releasing every frame it does not keep.
	DecodeRange(ctx context.Context, start time.Duration, maxLength *time.Duration) (<-chan *frame.Frame, <-chan error)

	// Close releases any resources held by the driver itself (not
	// per-call state, which DecodeRange/GetSingleFrame own).
	Close() error
}

// StreamInfo is the result of a one-time stream metadata probe.
type StreamInfo struct {
	Width     int
	Height    int
	FrameRate float64 // frames per second; <= 0 means unknown
	Duration  time.Duration
}

// StreamProbe retrieves width/height/frame-rate/duration for a media
// file, once, at session construction.
type StreamProbe interface {
	Probe(ctx context.Context, path string) (StreamInfo, error)
}

// ErrorSink receives asynchronous, non-fatal errors from background
// components (currently: the sequential decode worker) for logging.
type ErrorSink interface {
	ReportError(err error)
}
