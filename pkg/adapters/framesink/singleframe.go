// Package framesink implements the two write-only sink variants that
// consume a decoder child's raw BGRA pipe output: a single-frame sink
// for one-shot extraction and a chunk sink for continuous streaming.
package framesink

import (
	"sync"

	"github.com/user/framecore/pkg/ports"
)

// SingleFrame accumulates exactly one width*height*4 byte BGRA frame
// from arbitrarily chunked writes, then hands the completed buffer over
// once.
type SingleFrame struct {
	mu     sync.Mutex
	pool   ports.BitmapPool
	buf    []byte
	filled int
	taken  bool
}

// NewSingleFrame rents one buffer from pool for the sink to fill.
func NewSingleFrame(pool ports.BitmapPool) *SingleFrame {
	return &SingleFrame{
		pool: pool,
		buf:  pool.Rent(),
	}
}

// Write appends up to the frame's remaining capacity and silently drops
// any surplus bytes past the frame size.
func (s *SingleFrame) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := len(s.buf) - s.filled
	if remaining <= 0 {
		return len(p), nil
	}
	n := copy(s.buf[s.filled:], p)
	s.filled += n
	return len(p), nil
}

// HasFrame reports whether the buffer has been completely filled.
func (s *SingleFrame) HasFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled == len(s.buf)
}

// BytesWritten reports how many bytes have been written so far, for
// truncated-frame diagnostics.
func (s *SingleFrame) BytesWritten() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled
}

// TakeBuffer returns the completed buffer once, transferring ownership
// to the caller. Subsequent calls return (nil, false).
func (s *SingleFrame) TakeBuffer() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken || s.filled != len(s.buf) {
		return nil, false
	}
	s.taken = true
	buf := s.buf
	s.buf = nil
	return buf, true
}

// Close returns the buffer to the pool if it was never taken.
func (s *SingleFrame) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.taken && s.buf != nil {
		s.pool.Return(s.buf)
		s.buf = nil
	}
	return nil
}
