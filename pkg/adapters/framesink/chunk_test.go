package framesink

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/user/framecore/pkg/mocks"
)

func TestChunkPublishesCompletedFramesInOrder(t *testing.T) {
	pool := &mocks.BitmapPool{W: 1, H: 1}
	sink := NewChunk(context.Background(), pool, "clip.mp4", 0, 10*time.Millisecond)
	frameSize := 1 * 1 * 4

	payload := bytes.Repeat([]byte{0x11}, frameSize*3)
	if _, err := sink.Write(payload); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	sink.Close()

	var got []time.Duration
	for fr := range sink.Frames() {
		got = append(got, fr.Time)
		fr.Release()
	}

	want := []time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond}
	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d time = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestChunkWriteUnblocksOnContextCancel(t *testing.T) {
	pool := &mocks.BitmapPool{W: 64, H: 64}
	ctx, cancel := context.WithCancel(context.Background())
	sink := NewChunk(ctx, pool, "clip.mp4", 0, time.Millisecond)
	frameSize := 64 * 64 * 4

	// Fill the output channel to capacity without draining it, so the
	// next completed frame blocks in the back-pressure select.
	fullBatch := bytes.Repeat([]byte{1}, frameSize*FrameChannelCapacity)
	if _, err := sink.Write(fullBatch); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := sink.Write(bytes.Repeat([]byte{2}, frameSize))
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Write did not unblock after context cancellation")
	}
}

func TestChunkCloseKeepsPublishedFramesReadable(t *testing.T) {
	pool := &mocks.BitmapPool{W: 1, H: 1}
	sink := NewChunk(context.Background(), pool, "clip.mp4", 0, time.Millisecond)
	frameSize := 1 * 1 * 4

	sink.Write(bytes.Repeat([]byte{1}, frameSize*2))
	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	// The in-progress buffer went back to the pool; the two completed
	// frames stay readable until the consumer drains them.
	if pool.ReturnCount != 1 {
		t.Errorf("expected the partial buffer returned once, got %d", pool.ReturnCount)
	}
	var drained int
	for fr := range sink.Frames() {
		fr.Release()
		drained++
	}
	if drained != 2 {
		t.Errorf("expected 2 frames readable after Close, got %d", drained)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
}
