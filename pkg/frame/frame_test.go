package frame

import (
	"testing"
	"time"
)

func TestFrameReleaseCallsReleaseOnce(t *testing.T) {
	calls := 0
	buf := make([]byte, 16)
	f := New("clip.mp4", 100*time.Millisecond, 2, 2, buf, func(b []byte) {
		calls++
		if len(b) != 16 {
			t.Errorf("expected buffer len 16, got %d", len(b))
		}
	})

	f.Release()
	f.Release()
	f.Release()

	if calls != 1 {
		t.Errorf("expected release func called once, got %d", calls)
	}
}

func TestFrameReleaseNilFuncIsSafe(t *testing.T) {
	f := New("clip.mp4", 0, 1, 1, make([]byte, 4), nil)
	f.Release()
}

func TestQuantizeFloorsToBin(t *testing.T) {
	cases := []struct {
		t, unit, want time.Duration
	}{
		{100 * time.Millisecond, 10 * time.Millisecond, 100 * time.Millisecond},
		{104 * time.Millisecond, 10 * time.Millisecond, 100 * time.Millisecond},
		{109 * time.Millisecond, 10 * time.Millisecond, 100 * time.Millisecond},
		{-1 * time.Millisecond, 10 * time.Millisecond, -10 * time.Millisecond},
		{0, 10 * time.Millisecond, 0},
	}
	for _, c := range cases {
		got := Quantize(c.t, c.unit)
		if got != c.want {
			t.Errorf("Quantize(%v, %v) = %v, want %v", c.t, c.unit, got, c.want)
		}
	}
}

func TestQuantizeZeroUnitTreatedAsOneNanosecond(t *testing.T) {
	// A non-positive unit falls back to 1ns; any duration is already a
	// whole number of nanoseconds, so it passes through unchanged.
	if got := Quantize(5*time.Millisecond, 0); got != 5*time.Millisecond {
		t.Errorf("Quantize with zero unit = %v, want %v", got, 5*time.Millisecond)
	}
}

func TestDefaultQuantumUnderFrameDuration(t *testing.T) {
	fd := 1000 * time.Millisecond / 60
	q := DefaultQuantum(fd)
	if q <= 0 || q >= fd {
		t.Errorf("DefaultQuantum(%v) = %v, want in (0, %v)", fd, q, fd)
	}
}

func TestDefaultQuantumNonPositiveFrameDuration(t *testing.T) {
	if got := DefaultQuantum(0); got != 10*time.Millisecond {
		t.Errorf("DefaultQuantum(0) = %v, want 10ms fallback", got)
	}
}
