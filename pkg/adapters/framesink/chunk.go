package framesink

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/user/framecore/pkg/frame"
	"github.com/user/framecore/pkg/ports"
)

// FrameChannelCapacity is the bounded capacity of the chunk sink's
// output channel. Because Write blocks synchronously when the channel
// is full, this bound is also the back-pressure lever that eventually
// stalls the decoder child's pipe write (see pkg/worker).
const FrameChannelCapacity = 8

// Chunk reassembles full BGRA frames out of arbitrarily chunked pipe
// writes and publishes each completed frame to a bounded, single
// reader/single writer channel.
type Chunk struct {
	ctx           context.Context
	pool          ports.BitmapPool
	sourcePath    string
	startTime     time.Duration
	frameDuration time.Duration
	frameSize     int

	mu     sync.Mutex
	cur    []byte
	filled int
	index  int64
	closed bool

	out chan *frame.Frame
}

// NewChunk creates a chunk sink. frameDuration is the media-time spacing
// between successive frames (1/frame_rate); ctx is the decode-range
// lifetime, used to unblock a backpressured Write on cancellation.
func NewChunk(ctx context.Context, pool ports.BitmapPool, sourcePath string, startTime, frameDuration time.Duration) *Chunk {
	return &Chunk{
		ctx:           ctx,
		pool:          pool,
		sourcePath:    sourcePath,
		startTime:     startTime,
		frameDuration: frameDuration,
		frameSize:     pool.Width() * pool.Height() * 4,
		cur:           pool.Rent(),
		out:           make(chan *frame.Frame, FrameChannelCapacity),
	}
}

// Frames returns the channel of completed, timestamped frames.
func (c *Chunk) Frames() <-chan *frame.Frame {
	return c.out
}

// Write implements io.Writer. A write that completes one or more frames
// publishes each to the bounded channel, blocking the caller (and thus
// the decoder's pipe write) when the channel is full.
func (c *Chunk) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return total, nil
		}
		remaining := c.frameSize - c.filled
		n := copy(c.cur[c.filled:], p[:min(remaining, len(p))])
		c.filled += n
		p = p[n:]

		if c.filled < c.frameSize {
			c.mu.Unlock()
			continue
		}

		completed := c.cur
		idx := c.index
		c.index++
		c.cur = c.pool.Rent()
		c.filled = 0
		c.mu.Unlock()

		fr := frame.New(c.sourcePath, c.timestampFor(idx), c.pool.Width(), c.pool.Height(), completed, c.pool.Return)

		select {
		case c.out <- fr:
		case <-c.ctx.Done():
			fr.Release()
			return total - len(p), c.ctx.Err()
		}
	}
	return total, nil
}

func (c *Chunk) timestampFor(index int64) time.Duration {
	// Guard against overflow for pathologically long continuous decodes.
	step := float64(c.frameDuration) * float64(index)
	if step >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return c.startTime + time.Duration(step)
}

// Close stops accepting writes, returns the partially filled buffer to
// the pool, and closes the output channel. Frames already published
// remain readable; the consumer drains the channel and releases any
// frame it does not keep.
func (c *Chunk) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.cur != nil {
		c.pool.Return(c.cur)
		c.cur = nil
	}
	c.mu.Unlock()

	close(c.out)
	return nil
}
