// Package frame defines the decoded-picture value type shared by the
// cache, the decoder driver, the stream sinks, and the sequential worker.
package frame

import (
	"sync"
	"time"
)

// Frame is a single decoded picture at a timestamp, BGRA premultiplied,
// tightly packed rows of Width*4 bytes, Height rows.
//
// Pix is rented from a bitmap pool (see pkg/ports.BitmapPool). A Frame
// hands out at most one Release call's worth of effect; later calls are
// no-ops.
type Frame struct {
	SourcePath string
	Time       time.Duration
	Width      int
	Height     int
	Pix        []byte

	once    sync.Once
	release func([]byte)
}

// New creates a Frame whose pixel buffer will be returned to release
// when Release is called.
func New(sourcePath string, t time.Duration, width, height int, pix []byte, release func([]byte)) *Frame {
	return &Frame{
		SourcePath: sourcePath,
		Time:       t,
		Width:      width,
		Height:     height,
		Pix:        pix,
		release:    release,
	}
}

// Release returns the frame's pixel buffer to its owning pool. Safe to
// call multiple times or on a nil release func; only the first call has
// an effect.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.once.Do(func() {
		if f.release != nil {
			f.release(f.Pix)
		}
		f.Pix = nil
	})
}
