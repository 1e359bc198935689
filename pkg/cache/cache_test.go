package cache

import (
	"testing"
	"time"

	"github.com/user/framecore/pkg/frame"
)

func newTestFrame(t time.Duration) *frame.Frame {
	return frame.New("clip.mp4", t, 1, 1, make([]byte, 4), nil)
}

func TestCacheHitAfterSeed(t *testing.T) {
	c := New(4, 10*time.Millisecond)

	if !c.Add(newTestFrame(100 * time.Millisecond)) {
		t.Fatal("expected Add to succeed")
	}
	if fr, ok := c.TryGet(101*time.Millisecond, 5*time.Millisecond); !ok || fr.Time != 100*time.Millisecond {
		t.Errorf("TryGet(101ms, 5ms) = %v, %v; want the 100ms frame", fr, ok)
	}
	if _, ok := c.TryGet(120*time.Millisecond, 5*time.Millisecond); ok {
		t.Error("TryGet(120ms, 5ms) should miss")
	}
}

func TestCacheBestMatchTieBreak(t *testing.T) {
	c := New(4, time.Millisecond)
	c.Add(newTestFrame(100 * time.Millisecond))
	c.Add(newTestFrame(105 * time.Millisecond))
	c.Add(newTestFrame(110 * time.Millisecond))

	fr, ok := c.TryGet(104*time.Millisecond, 5*time.Millisecond)
	if !ok {
		t.Fatal("expected a hit")
	}
	if fr.Time != 105*time.Millisecond {
		t.Errorf("expected closest match at 105ms, got %v", fr.Time)
	}
}

func TestCacheContainsDoesNotPromote(t *testing.T) {
	c := New(2, time.Millisecond)
	c.Add(newTestFrame(0))
	c.Add(newTestFrame(10 * time.Millisecond))

	if !c.Contains(0, time.Millisecond) {
		t.Fatal("expected Contains hit on t=0")
	}
	c.Add(newTestFrame(20 * time.Millisecond))

	// Contains must not have promoted t=0, so t=0 is still the LRU
	// entry and gets evicted by the third insert.
	if c.Contains(0, time.Millisecond) {
		t.Error("expected t=0 evicted; Contains must not promote")
	}
	if !c.Contains(10*time.Millisecond, time.Millisecond) {
		t.Error("expected t=10ms to survive")
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := New(2, time.Millisecond)
	c.Add(newTestFrame(0))
	c.Add(newTestFrame(10 * time.Millisecond))

	if _, ok := c.TryGet(0, time.Millisecond); !ok {
		t.Fatal("expected hit on t=0, promoting it")
	}
	c.Add(newTestFrame(20 * time.Millisecond)) // evicts t=10ms, the LRU entry

	if _, ok := c.TryGet(10*time.Millisecond, time.Millisecond); ok {
		t.Error("expected t=10ms to have been evicted")
	}
	if _, ok := c.TryGet(0, time.Millisecond); !ok {
		t.Error("expected t=0 to survive (it was promoted)")
	}
	if _, ok := c.TryGet(20*time.Millisecond, time.Millisecond); !ok {
		t.Error("expected t=20ms to be present")
	}
}

func TestCacheDuplicateAddSecondFails(t *testing.T) {
	c := New(4, 10*time.Millisecond)
	a := newTestFrame(100 * time.Millisecond)
	b := newTestFrame(104 * time.Millisecond) // same quantized bin as a

	if !c.Add(a) {
		t.Fatal("expected first Add to succeed")
	}
	if c.Add(b) {
		t.Error("expected second Add at the same quantized key to fail")
	}
	if fr, ok := c.TryGet(100*time.Millisecond, time.Millisecond); !ok || fr != a {
		t.Error("expected the first-added frame to remain in the cache")
	}
}

func TestCacheNeverExceedsMaxSize(t *testing.T) {
	c := New(3, time.Millisecond)
	for i := 0; i < 20; i++ {
		c.Add(newTestFrame(time.Duration(i) * time.Millisecond))
		if c.Len() > 3 {
			t.Fatalf("cache size %d exceeds max 3 after insert %d", c.Len(), i)
		}
	}
}

func TestCacheHoldsExactlyMostRecentNKeys(t *testing.T) {
	c := New(4, time.Millisecond)
	for i := 0; i < 4+3; i++ {
		c.Add(newTestFrame(time.Duration(i) * time.Millisecond))
	}
	for i := 0; i < 3; i++ {
		if _, ok := c.TryGet(time.Duration(i)*time.Millisecond, 0); ok {
			t.Errorf("expected key %d to have been evicted", i)
		}
	}
	for i := 3; i < 7; i++ {
		if _, ok := c.TryGet(time.Duration(i)*time.Millisecond, 0); !ok {
			t.Errorf("expected key %d to still be present", i)
		}
	}
}

func TestCacheDisposeReleasesFrames(t *testing.T) {
	released := 0
	c := New(4, time.Millisecond)
	fr := frame.New("clip.mp4", 0, 1, 1, make([]byte, 4), func([]byte) { released++ })
	c.Add(fr)
	c.Dispose()
	if released != 1 {
		t.Errorf("expected frame released once on Dispose, got %d", released)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Dispose, got len %d", c.Len())
	}
}
