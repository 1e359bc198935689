// Package bitmappool provides a bounded, concurrent pool of fixed-size
// BGRA pixel buffers, one resolution per pool.
package bitmappool

import (
	"github.com/user/framecore/pkg/ports"
)

// Pool is a BitmapPool backed by a buffered channel acting as a bounded
// free list. Rent/Return never block: Rent drains the channel
// non-blockingly and allocates on a miss; Return enqueues non-blockingly
// and discards the buffer if the pool is full or the buffer doesn't
// match the pool's geometry.
type Pool struct {
	width, height int
	frameSize     int
	free          chan []byte
}

// New creates a pool for width x height BGRA buffers with the given
// capacity (maximum number of buffers held idle at once).
func New(width, height, capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		width:     width,
		height:    height,
		frameSize: width * height * 4,
		free:      make(chan []byte, capacity),
	}
}

// Rent returns a buffer of exactly Width()*Height()*4 bytes.
func (p *Pool) Rent() []byte {
	select {
	case buf := <-p.free:
		return buf
	default:
		return make([]byte, p.frameSize)
	}
}

// Return gives buf back to the pool, or discards it if it doesn't match
// this pool's geometry or the pool is already at capacity.
func (p *Pool) Return(buf []byte) {
	if buf == nil || len(buf) != p.frameSize {
		return
	}
	select {
	case p.free <- buf:
	default:
	}
}

// Width returns the buffer width in pixels.
func (p *Pool) Width() int { return p.width }

// Height returns the buffer height in pixels.
func (p *Pool) Height() int { return p.height }

var _ ports.BitmapPool = (*Pool)(nil)
