package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/user/framecore/pkg/frame"
)

// fakeCache is a minimal CacheAdder that records every added frame and
// never rejects an add, since duplicate-add races are exercised at the
// cache package's own level.
type fakeCache struct {
	mu     sync.Mutex
	frames []*frame.Frame
}

func (c *fakeCache) Add(fr *frame.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, fr)
	return true
}

func (c *fakeCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// fakeDecoder emits a fixed, evenly spaced sequence of frames on
// DecodeRange and blocks the channel send exactly like a real
// back-pressured chunk sink would, so should_wait_for_demand tests
// observe throttling.
type fakeDecoder struct {
	frameDuration time.Duration
	total         int

	mu        sync.Mutex
	calls     int
	cancelled int
}

func (d *fakeDecoder) DecodeRange(ctx context.Context, start time.Duration, maxLength *time.Duration) (<-chan *frame.Frame, <-chan error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	out := make(chan *frame.Frame)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		for i := 0; i < d.total; i++ {
			fr := frame.New("clip.mp4", start+time.Duration(i)*d.frameDuration, 1, 1, make([]byte, 4), nil)
			select {
			case out <- fr:
			case <-ctx.Done():
				d.mu.Lock()
				d.cancelled++
				d.mu.Unlock()
				errCh <- ctx.Err()
				return
			}
		}
		errCh <- nil
	}()
	return out, errCh
}

func (d *fakeDecoder) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDecoder) cancelledCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelled
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before timeout")
	}
}

func TestWorkerThrottlesToLookAhead(t *testing.T) {
	fd := 10 * time.Millisecond
	decoder := &fakeDecoder{frameDuration: fd, total: 1000}
	cache := &fakeCache{}
	w := New(decoder, cache, fd, func(*frame.Frame) {}, func(error) {}, nil)
	w.UpdateStrategy(5*fd, 5*fd) // small look-ahead so throttling kicks in fast

	ctx := context.Background()
	w.EnsureStartedAt(ctx, 0)

	// should_wait_for_demand fires once decoded_until >= demand+max(chunk,look_ahead) = 5*fd.
	waitFor(t, time.Second, func() bool {
		until, ok := w.DecodedUntil()
		return ok && until >= 5*fd
	})
	time.Sleep(20 * time.Millisecond) // let the loop settle into its wait
	stalled := cache.count()
	time.Sleep(20 * time.Millisecond)
	if cache.count() > stalled+2 {
		t.Errorf("expected decode to throttle near %d frames, kept advancing to %d", stalled, cache.count())
	}

	w.Stop()
}

func TestWorkerUpdateDemandResumesThrottledLoop(t *testing.T) {
	fd := 5 * time.Millisecond
	decoder := &fakeDecoder{frameDuration: fd, total: 200}
	cache := &fakeCache{}
	w := New(decoder, cache, fd, func(*frame.Frame) {}, func(error) {}, nil)
	w.UpdateStrategy(4*fd, 4*fd)

	ctx := context.Background()
	w.EnsureStartedAt(ctx, 0)

	waitFor(t, time.Second, func() bool {
		until, ok := w.DecodedUntil()
		return ok && until >= 4*fd
	})
	stalledAt := cache.count()

	w.UpdateDemand(20 * fd)
	waitFor(t, time.Second, func() bool {
		return cache.count() > stalledAt
	})

	// The same persistent decode stream serves the advanced demand; no
	// second DecodeRange may be entered without an explicit restart.
	if decoder.callCount() != 1 {
		t.Errorf("expected a single DecodeRange call across the playback, got %d", decoder.callCount())
	}

	w.Stop()
}

func TestWorkerDecodedUntilIsMonotonic(t *testing.T) {
	fd := 2 * time.Millisecond
	decoder := &fakeDecoder{frameDuration: fd, total: 50}
	cache := &fakeCache{}
	w := New(decoder, cache, fd, func(*frame.Frame) {}, func(error) {}, nil)
	w.UpdateStrategy(100*fd, 100*fd) // never throttle

	w.EnsureStartedAt(context.Background(), 0)

	var prev time.Duration
	waitFor(t, time.Second, func() bool {
		until, ok := w.DecodedUntil()
		if !ok {
			return false
		}
		if until < prev {
			t.Fatalf("DecodedUntil regressed from %v to %v", prev, until)
		}
		prev = until
		return until >= 49*fd
	})

	w.Stop()
}

func TestWorkerEnsureStartedAtCancelsPreviousGeneration(t *testing.T) {
	fd := time.Millisecond
	decoder := &fakeDecoder{frameDuration: fd, total: 100000}
	cache := &fakeCache{}
	w := New(decoder, cache, fd, func(*frame.Frame) {}, func(error) {}, nil)

	ctx := context.Background()
	w.EnsureStartedAt(ctx, 0)
	waitFor(t, time.Second, func() bool { return decoder.callCount() >= 1 })

	w.EnsureStartedAt(ctx, 500*time.Millisecond)
	waitFor(t, time.Second, func() bool { return decoder.callCount() >= 2 })

	// The first generation's decode stream observes its cancellation
	// while the second generation is still running.
	waitFor(t, time.Second, func() bool { return decoder.cancelledCount() >= 1 })

	w.Stop()
}

func TestWorkerStopIsIdempotentWhenNeverStarted(t *testing.T) {
	fd := time.Millisecond
	decoder := &fakeDecoder{frameDuration: fd, total: 1}
	cache := &fakeCache{}
	w := New(decoder, cache, fd, func(*frame.Frame) {}, func(error) {}, nil)
	w.Stop()
	w.Stop()
	if w.IsRunning() {
		t.Error("expected worker not running")
	}
}
