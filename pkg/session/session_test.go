package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/framecore/pkg/config"
	"github.com/user/framecore/pkg/ports"
)

func testStreamInfo() ports.StreamInfo {
	return ports.StreamInfo{Width: 64, Height: 48, FrameRate: 60, Duration: 10 * time.Second}
}

func TestOpenRejectsMissingVideoStream(t *testing.T) {
	_, err := Open(context.Background(), "clip.mp4", ports.StreamInfo{}, config.Defaults(), Deps{})
	if err == nil {
		t.Fatal("expected Open to fail without a video stream")
	}
}

func TestOpenSubstitutesDefaultFrameRate(t *testing.T) {
	info := testStreamInfo()
	info.FrameRate = 0
	s, err := Open(context.Background(), "clip.mp4", info, config.Defaults(), Deps{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer s.Dispose()

	rate := defaultFrameRate
	want := time.Duration(float64(time.Second) / rate)
	if s.frameDuration != want {
		t.Errorf("frameDuration = %v, want %v (default 60 fps)", s.frameDuration, want)
	}
}

func TestGetFrameAfterDisposeReturnsErrDisposed(t *testing.T) {
	s, err := Open(context.Background(), "clip.mp4", testStreamInfo(), config.Defaults(), Deps{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	s.Dispose()

	if _, err := s.GetFrame(time.Second); !errors.Is(err, ErrDisposed) {
		t.Errorf("GetFrame after Dispose = %v, want ErrDisposed", err)
	}
	if _, err := s.GetFrameAtIndex(3); !errors.Is(err, ErrDisposed) {
		t.Errorf("GetFrameAtIndex after Dispose = %v, want ErrDisposed", err)
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	s, err := Open(context.Background(), "clip.mp4", testStreamInfo(), config.Defaults(), Deps{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	s.Dispose()
	s.Dispose()
}

func TestResolveHwaccelAPIFallsBackToAuto(t *testing.T) {
	cases := map[string]string{
		"cuda":         "cuda",
		"videotoolbox": "videotoolbox",
		"none":         "none",
		"bogus":        "auto",
		"":             "auto",
	}
	for in, want := range cases {
		if got := resolveHwaccelAPI(in); got != want {
			t.Errorf("resolveHwaccelAPI(%q) = %q, want %q", in, got, want)
		}
	}
}
