// Package session implements the request coordinator and the public
// per-file session it backs: classification of each get_frame request
// as sequential/seek/catchup, an EMA playback-speed estimator, the
// adaptive look-ahead/chunk-length strategy, and the fallback paths
// that keep the session responsive when the worker hasn't kept up.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/framecore/pkg/cache"
	"github.com/user/framecore/pkg/frame"
	"github.com/user/framecore/pkg/metrics"
	"github.com/user/framecore/pkg/ports"
	"github.com/user/framecore/pkg/worker"
)

// ErrDisposed is returned by any public operation on a torn-down session.
var ErrDisposed = errors.New("session: disposed")

// ErrDecodeFailed is returned after the single-frame fallback path
// exhausts its cache-add retries.
var ErrDecodeFailed = errors.New("session: decode failed")

const (
	alpha                  = 0.25
	maxAdaptiveSpeed       = 4.0
	minAdaptiveSpeed       = 0.35
	speedSignalDeltaLimit  = 4 * time.Second
	speedSignalWallMin     = 0
	speedSignalWallMax     = 1200 * time.Millisecond
	catchupCeiling         = 2500 * time.Millisecond
	catchupWait            = 120 * time.Millisecond
	sequentialWaitDefault  = 45 * time.Millisecond
	sequentialWaitRecovery = 120 * time.Millisecond
	addRetryLimit          = 3
	fallbackStreakLimit    = 2
	strategyChatterFloor   = 18 * time.Millisecond
)

// motion tracks the EMA-smoothed playback speed estimate.
type motion struct {
	smoothed  float64
	hasSignal bool
}

// decoderDriver is the subset of ports.DecoderDriver the coordinator
// uses directly (DecodeRange is consumed by the worker, not here).
type decoderDriver interface {
	GetSingleFrame(ctx context.Context, t time.Duration) (*frame.Frame, error)
}

// clock abstracts wall-clock reads so tests can control elapsed time.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// coordinator holds all per-session mutable scheduling state behind one
// lock. Critical sections stay narrow and never block on I/O.
type coordinator struct {
	decoder       decoderDriver
	cache         *cache.Cache
	worker        *worker.Worker
	frameDuration time.Duration
	duration      time.Duration
	cacheCapacity int
	log           ports.Logger
	metrics       metrics.Recorder
	clock         clock
	ctx           context.Context

	mu                  sync.Mutex
	lastRequestTime     time.Duration
	lastRequestWall     time.Time
	hasLastRequest      bool
	motionState         motion
	fallbackStreak      int
	workerNeedsRestart  bool
	instructedChunk     time.Duration
	instructedLookAhead time.Duration
}

func newCoordinator(ctx context.Context, decoder decoderDriver, c *cache.Cache, w *worker.Worker, frameDuration, duration time.Duration, cacheCapacity int, log ports.Logger, rec metrics.Recorder) *coordinator {
	return &coordinator{
		decoder:             decoder,
		cache:               c,
		worker:              w,
		frameDuration:       frameDuration,
		duration:            duration,
		cacheCapacity:       cacheCapacity,
		log:                 log,
		metrics:             rec,
		clock:               realClock{},
		ctx:                 ctx,
		motionState:         motion{smoothed: 1.0},
		instructedChunk:     frameDuration * 30,
		instructedLookAhead: frameDuration * 60,
	}
}

func (c *coordinator) sequentialThreshold() time.Duration {
	t := 10 * c.frameDuration
	if t < 500*time.Millisecond {
		t = 500 * time.Millisecond
	}
	return t
}

func (c *coordinator) seekTolerance() time.Duration {
	tick := time.Nanosecond
	half := c.frameDuration - tick
	if half < tick {
		half = tick
	}
	return half
}

func clampTime(t, lo, hi time.Duration) time.Duration {
	if t < lo {
		return lo
	}
	if t > hi {
		return hi
	}
	return t
}

// getFrame is the single hot path: classify, capture motion, probe the
// cache, and dispatch to the seek/catchup/sequential branch on a miss.
func (c *coordinator) getFrame(target time.Duration) (*frame.Frame, error) {
	lo := time.Duration(0)
	hi := c.duration - c.frameDuration
	if hi < lo {
		hi = lo
	}
	target = clampTime(target, lo, hi)

	now := c.clock.Now()

	c.mu.Lock()
	kind, delta, wallElapsed := c.classify(target, now)
	c.captureMotion(delta, wallElapsed)
	c.mu.Unlock()

	tolerance := c.seekTolerance()

	if fr, ok := c.cache.TryGet(target, tolerance); ok {
		c.mu.Lock()
		c.fallbackStreak = 0
		if kind == requestSeek {
			c.workerNeedsRestart = true
			c.resetMotion()
		} else {
			c.ensureWorkerReadyLocked(target)
		}
		c.finalizeLocked(target, now)
		c.mu.Unlock()
		c.metrics.CacheHit()
		return fr, nil
	}
	c.metrics.CacheMiss()

	var (
		fr  *frame.Frame
		err error
	)
	switch {
	case kind == requestSeek && delta <= catchupCeiling && delta > c.sequentialThreshold():
		fr, err = c.catchupBranch(target, tolerance)
	case kind == requestSeek:
		fr, err = c.seekBranch(target)
	default:
		fr, err = c.sequentialBranch(target, tolerance)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.finalizeLocked(target, now)
	c.mu.Unlock()
	return fr, nil
}

type requestKind int

const (
	requestSeek requestKind = iota
	requestSequential
)

// classify must be called with c.mu held.
func (c *coordinator) classify(target time.Duration, now time.Time) (requestKind, time.Duration, time.Duration) {
	if !c.hasLastRequest {
		return requestSeek, 0, 0
	}
	delta := target - c.lastRequestTime
	wallElapsed := now.Sub(c.lastRequestWall)
	if delta < 0 || delta > c.sequentialThreshold() {
		return requestSeek, delta, wallElapsed
	}
	return requestSequential, delta, wallElapsed
}

// captureMotion must be called with c.mu held.
func (c *coordinator) captureMotion(delta, wallElapsed time.Duration) {
	if !c.hasLastRequest {
		return
	}
	absDelta := delta
	if absDelta < 0 {
		absDelta = -absDelta
	}
	if absDelta > speedSignalDeltaLimit {
		c.motionState = motion{smoothed: 1.0, hasSignal: false}
		return
	}
	if wallElapsed <= speedSignalWallMin || wallElapsed > speedSignalWallMax {
		c.motionState.hasSignal = false
		return
	}
	instant := float64(delta) / float64(wallElapsed)
	bound := 2 * maxAdaptiveSpeed
	if instant > bound {
		instant = bound
	}
	if instant < -bound {
		instant = -bound
	}
	c.motionState.smoothed = c.motionState.smoothed*(1-alpha) + instant*alpha
	c.motionState.hasSignal = true
}

// resetMotion must be called with c.mu held.
func (c *coordinator) resetMotion() {
	c.motionState = motion{smoothed: 1.0, hasSignal: false}
}

// finalizeLocked must be called with c.mu held.
func (c *coordinator) finalizeLocked(target time.Duration, now time.Time) {
	c.lastRequestTime = target
	c.lastRequestWall = now
	c.hasLastRequest = true
}

// ensureWorkerReadyLocked starts a fresh worker generation if the
// restart predicate says it must, otherwise just bumps demand. Either
// way the adaptive strategy is re-applied. Must be called with c.mu
// held.
func (c *coordinator) ensureWorkerReadyLocked(target time.Duration) {
	if c.shouldRestartWorker() {
		c.workerNeedsRestart = false
		c.worker.EnsureStartedAt(c.ctx, target)
		c.metrics.WorkerRestart()
		c.applyAdaptiveStrategyLocked(target)
		return
	}
	c.worker.UpdateDemand(target)
	c.applyAdaptiveStrategyLocked(target)
}

// shouldRestartWorker must be called with c.mu held. A running worker
// is never restarted just because a request ran ahead of
// decoded_until — one persistent decoder is meant to serve an entire
// continuous playback. Only a dead worker or a pending restart mark
// (set on a non-sequential request) forces a new generation.
func (c *coordinator) shouldRestartWorker() bool {
	return c.workerNeedsRestart || !c.worker.IsRunning()
}

// primeWorker ensures the worker is running at target from outside the
// request path.
func (c *coordinator) primeWorker(target time.Duration) {
	c.mu.Lock()
	c.ensureWorkerReadyLocked(target)
	c.mu.Unlock()
}

// applyAdaptiveStrategyLocked recomputes look-ahead/chunk and pushes
// them to the worker only when they moved enough to matter. Must be
// called with c.mu held.
func (c *coordinator) applyAdaptiveStrategyLocked(requestTime time.Duration) {
	speed := minAdaptiveSpeed
	if c.motionState.hasSignal {
		s := c.motionState.smoothed
		if s < 0 {
			speed = minAdaptiveSpeed
		} else {
			speed = s
		}
	}
	if speed < minAdaptiveSpeed {
		speed = minAdaptiveSpeed
	}
	if speed > maxAdaptiveSpeed {
		speed = maxAdaptiveSpeed
	}

	n := float64(c.cacheCapacity)
	laMinTicks := clampFloat(0.18*n, 8, 72)
	laMaxTicks := clampFloat(0.9*n, 30, 220)
	laMin := time.Duration(laMinTicks) * c.frameDuration
	laMax := time.Duration(laMaxTicks) * c.frameDuration
	chunkMin := laMin / 2
	chunkMax := laMax / 2

	baseLookAhead := c.instructedLookAhead
	if baseLookAhead <= 0 {
		baseLookAhead = laMin
	}

	// Faster playback burns look-ahead faster, so the nominal target
	// (before the headroom nudges below) scales with estimated speed.
	lookAhead := clampDuration(time.Duration(float64(baseLookAhead)*speed), laMin, laMax)
	chunk := c.instructedChunk
	if chunk <= 0 {
		chunk = chunkMin
	}

	decodedUntil, decodedSet := c.worker.DecodedUntil()
	var headroom time.Duration
	if decodedSet && decodedUntil > requestTime {
		headroom = decodedUntil - requestTime
	}

	switch {
	case headroom <= 8*c.frameDuration:
		lookAhead = time.Duration(float64(lookAhead) * 1.45)
		chunk = time.Duration(float64(chunk) * 1.18)
	case headroom >= time.Duration(float64(baseLookAhead)*1.4):
		lookAhead = time.Duration(float64(lookAhead) * 0.85)
		chunk = time.Duration(float64(chunk) * 0.85)
	}

	lookAhead = clampDuration(lookAhead, laMin, laMax)
	chunk = clampDuration(chunk, chunkMin, chunkMax)

	chunkDelta := chunk - c.instructedChunk
	if chunkDelta < 0 {
		chunkDelta = -chunkDelta
	}
	lookAheadDelta := lookAhead - c.instructedLookAhead
	if lookAheadDelta < 0 {
		lookAheadDelta = -lookAheadDelta
	}
	if chunkDelta < strategyChatterFloor && lookAheadDelta < strategyChatterFloor {
		return
	}

	c.instructedChunk = chunk
	c.instructedLookAhead = lookAhead
	c.worker.UpdateStrategy(chunk, lookAhead)
	if c.log != nil {
		c.log.Debug("adaptive strategy: chunk=%s lookAhead=%s", chunk, lookAhead)
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// catchupBranch handles a forward jump small enough that restarting the
// worker at the new position and waiting briefly beats a one-shot
// decode.
func (c *coordinator) catchupBranch(target time.Duration, tolerance time.Duration) (*frame.Frame, error) {
	c.mu.Lock()
	if c.log != nil {
		c.log.Info("catchup from %s to %s", c.lastRequestTime, target)
	}
	c.workerNeedsRestart = true
	c.ensureWorkerReadyLocked(target)
	c.resetMotion()
	c.mu.Unlock()

	if fr, ok := c.waitForCache(target, tolerance, catchupWait); ok {
		return fr, nil
	}
	return c.singleFrameFallback(target)
}

// seekBranch handles a plain seek miss: decode one frame now, then
// restart the worker at the new position in the background.
func (c *coordinator) seekBranch(target time.Duration) (*frame.Frame, error) {
	if c.log != nil {
		c.log.Info("seek to %s", target)
	}
	fr, err := c.singleFrameFallback(target)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.workerNeedsRestart = true
	c.mu.Unlock()
	// Prime the worker at the new position off the request path, so the
	// first sequential request after this seek finds warm cache.
	go c.primeWorker(target)
	return fr, nil
}

// sequentialBranch waits briefly for the worker to fill the cache, then
// falls back to a single-frame decode and tracks the fallback streak.
func (c *coordinator) sequentialBranch(target time.Duration, tolerance time.Duration) (*frame.Frame, error) {
	c.mu.Lock()
	c.ensureWorkerReadyLocked(target)
	recovering := c.fallbackStreak > 0
	c.mu.Unlock()

	wait := sequentialWaitDefault
	if recovering {
		wait = sequentialWaitRecovery
	}

	if fr, ok := c.waitForCache(target, tolerance, wait); ok {
		c.mu.Lock()
		c.fallbackStreak = 0
		c.mu.Unlock()
		return fr, nil
	}

	c.mu.Lock()
	c.fallbackStreak++
	streak := c.fallbackStreak
	c.mu.Unlock()
	c.metrics.SequentialFallback()
	if c.log != nil {
		c.log.Warn("sequential fallback streak=%d", streak)
	}

	fr, err := c.singleFrameFallback(target)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if streak >= fallbackStreakLimit {
		c.workerNeedsRestart = true
		c.ensureWorkerReadyLocked(target)
		c.fallbackStreak = 0
	} else {
		c.worker.UpdateDemand(target)
	}
	c.mu.Unlock()
	return fr, nil
}

// waitForCache re-probes the cache, then awaits the worker's
// frame-arrival signal with the remaining timeout, looping until a hit
// or the deadline passes. The signal only says that some frame arrived;
// the cache lookup re-filters by time.
func (c *coordinator) waitForCache(target, tolerance, timeout time.Duration) (*frame.Frame, bool) {
	deadline := c.clock.Now().Add(timeout)
	arrival := c.worker.ArrivalChan()
	for {
		if fr, ok := c.cache.TryGet(target, tolerance); ok {
			return fr, true
		}
		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			return nil, false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-arrival:
			timer.Stop()
		case <-timer.C:
			return nil, false
		case <-c.ctx.Done():
			timer.Stop()
			return nil, false
		}
	}
}

// singleFrameFallback decodes one frame and adds it to the cache,
// retrying up to addRetryLimit times to resolve add/duplicate races.
// Callers are responsible for any worker restart that should follow.
func (c *coordinator) singleFrameFallback(target time.Duration) (*frame.Frame, error) {
	for attempt := 0; attempt < addRetryLimit; attempt++ {
		start := c.clock.Now()
		fr, err := c.decoder.GetSingleFrame(c.ctx, target)
		c.metrics.DecodeDuration(c.clock.Now().Sub(start).Seconds())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			continue
		}
		if c.cache.Add(fr) {
			c.worker.SignalArrival()
			return fr, nil
		}
		fr.Release()
		tolerance := c.seekTolerance()
		if cached, ok := c.cache.TryGet(target, tolerance); ok {
			return cached, nil
		}
	}
	err := fmt.Errorf("%w: at %s", ErrDecodeFailed, target)
	if c.log != nil {
		c.log.Error("decode failed at %s: %s", target, err.Error())
	}
	return nil, err
}
