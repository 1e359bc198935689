// Package cache implements the time-quantized frame cache: a bounded
// mapping from quantized timestamp to decoded frame with LRU eviction
// and tolerance-based lookup.
//
// Ordering and eviction bookkeeping are delegated to
// github.com/hashicorp/golang-lru; the tolerance-window scan and the
// duplicate-key check are implemented on top of it under one mutex, so
// scan-then-promote and check-then-insert stay atomic with respect to
// concurrent callers.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/user/framecore/pkg/frame"
)

// Cache is the bounded, quantized, tolerance-lookup frame cache.
type Cache struct {
	mu       sync.Mutex
	inner    *lru.Cache
	quantum  time.Duration
	maxSize  int
	disposed bool
}

// New creates a Cache with the given maximum size and quantization
// unit. Evicted frames are released back to their owning pool via
// Frame.Release.
func New(maxSize int, quantum time.Duration) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	if quantum <= 0 {
		quantum = time.Millisecond
	}
	c := &Cache{quantum: quantum, maxSize: maxSize}
	inner, err := lru.NewWithEvict(maxSize, func(key interface{}, value interface{}) {
		if fr, ok := value.(*frame.Frame); ok {
			fr.Release()
		}
	})
	if err != nil {
		// lru.NewWithEvict only errors on size < 1, which we've already
		// guarded against above.
		panic(err)
	}
	c.inner = inner
	return c
}

// Quantum returns the cache's quantization unit.
func (c *Cache) Quantum() time.Duration { return c.quantum }

// MaxSize returns the cache's maximum entry count.
func (c *Cache) MaxSize() int { return c.maxSize }

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

// TryGet scans the quantized keys covering [target-tolerance,
// target+tolerance] and returns the cached frame whose time is closest
// to target among those within tolerance, promoting it to
// most-recently-used. Returns (nil, false) on a miss.
func (c *Cache) TryGet(target, tolerance time.Duration) (*frame.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.scan(target, tolerance)
	if !ok {
		return nil, false
	}
	v, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*frame.Frame), true
}

// Contains performs the same scan as TryGet without promoting anything.
func (c *Cache) Contains(target, tolerance time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.scan(target, tolerance)
	return ok
}

// scan must be called with c.mu held. It returns the quantized key of
// the best match, if any, using Peek so no entry is promoted.
func (c *Cache) scan(target, tolerance time.Duration) (time.Duration, bool) {
	if tolerance < 0 {
		tolerance = 0
	}
	lo := frame.Quantize(target-tolerance, c.quantum)
	hi := frame.Quantize(target+tolerance, c.quantum)

	var (
		bestKey  time.Duration
		bestDist time.Duration
		found    bool
	)
	for k := lo; k <= hi; k += c.quantum {
		v, ok := c.inner.Peek(k)
		if !ok {
			continue
		}
		fr := v.(*frame.Frame)
		dist := fr.Time - target
		if dist < 0 {
			dist = -dist
		}
		if dist > tolerance {
			continue
		}
		if !found || dist < bestDist {
			found = true
			bestDist = dist
			bestKey = k
		}
	}
	return bestKey, found
}

// Add inserts frame at its quantized time. Returns false, consuming
// nothing, if an entry already occupies that quantized key — the caller
// must then dispose its duplicate (call fr.Release()). Eviction of the
// least-recently-used entry happens automatically once size exceeds
// MaxSize.
func (c *Cache) Add(fr *frame.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := frame.Quantize(fr.Time, c.quantum)
	if c.inner.Contains(key) {
		return false
	}
	c.inner.Add(key, fr)
	return true
}

// Dispose releases every cached frame's buffer back to its pool and
// empties the cache.
func (c *Cache) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.disposed = true
	c.inner.Purge()
}
