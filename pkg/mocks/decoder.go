// Package mocks provides hand-written test doubles for the ports
// interfaces: DecoderDriver and StreamProbe take their behavior from
// XxxFunc fields, and DecoderDriver, ErrorSink and BitmapPool record
// calls for assertions.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/user/framecore/pkg/frame"
	"github.com/user/framecore/pkg/ports"
)

// DecoderDriver is a mock implementation of ports.DecoderDriver.
type DecoderDriver struct {
	GetSingleFrameFunc func(ctx context.Context, t time.Duration) (*frame.Frame, error)
	DecodeRangeFunc    func(ctx context.Context, start time.Duration, maxLength *time.Duration) (<-chan *frame.Frame, <-chan error)
	CloseFunc          func() error

	mu                    sync.Mutex
	GetSingleFrameCalls   []time.Duration
	DecodeRangeCalls      []time.Duration
	CloseCalled           bool
}

func (m *DecoderDriver) GetSingleFrame(ctx context.Context, t time.Duration) (*frame.Frame, error) {
	m.mu.Lock()
	m.GetSingleFrameCalls = append(m.GetSingleFrameCalls, t)
	m.mu.Unlock()
	if m.GetSingleFrameFunc != nil {
		return m.GetSingleFrameFunc(ctx, t)
	}
	return nil, nil
}

func (m *DecoderDriver) DecodeRange(ctx context.Context, start time.Duration, maxLength *time.Duration) (<-chan *frame.Frame, <-chan error) {
	m.mu.Lock()
	m.DecodeRangeCalls = append(m.DecodeRangeCalls, start)
	m.mu.Unlock()
	if m.DecodeRangeFunc != nil {
		return m.DecodeRangeFunc(ctx, start, maxLength)
	}
	frames := make(chan *frame.Frame)
	errCh := make(chan error, 1)
	close(frames)
	errCh <- nil
	close(errCh)
	return frames, errCh
}

func (m *DecoderDriver) Close() error {
	m.mu.Lock()
	m.CloseCalled = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// DecodeRangeCallCount reports how many times DecodeRange was invoked,
// for the single-decoder-invariant tests.
func (m *DecoderDriver) DecodeRangeCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.DecodeRangeCalls)
}

var _ ports.DecoderDriver = (*DecoderDriver)(nil)

// StreamProbe is a mock implementation of ports.StreamProbe.
type StreamProbe struct {
	ProbeFunc func(ctx context.Context, path string) (ports.StreamInfo, error)
}

func (m *StreamProbe) Probe(ctx context.Context, path string) (ports.StreamInfo, error) {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, path)
	}
	return ports.StreamInfo{Width: 1920, Height: 1080, FrameRate: 60, Duration: 60 * time.Second}, nil
}

var _ ports.StreamProbe = (*StreamProbe)(nil)

// ErrorSink is a mock implementation of ports.ErrorSink.
type ErrorSink struct {
	mu     sync.Mutex
	Errors []error
}

func (m *ErrorSink) ReportError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, err)
}

func (m *ErrorSink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Errors)
}

var _ ports.ErrorSink = (*ErrorSink)(nil)

// BitmapPool is a mock implementation of ports.BitmapPool that always
// allocates fresh buffers, for tests that don't care about pooling.
type BitmapPool struct {
	W, H int

	mu          sync.Mutex
	RentCount   int
	ReturnCount int
}

func (m *BitmapPool) Rent() []byte {
	m.mu.Lock()
	m.RentCount++
	m.mu.Unlock()
	return make([]byte, m.W*m.H*4)
}

func (m *BitmapPool) Return(buf []byte) {
	m.mu.Lock()
	m.ReturnCount++
	m.mu.Unlock()
}

func (m *BitmapPool) Width() int  { return m.W }
func (m *BitmapPool) Height() int { return m.H }

var _ ports.BitmapPool = (*BitmapPool)(nil)
