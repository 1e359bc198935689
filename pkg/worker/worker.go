// Package worker implements the sequential decode worker: a persistent
// decoder child kept alive across a continuous playback, throttled so
// that how far ahead it decodes tracks an externally tuned look-ahead.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/framecore/pkg/frame"
	"github.com/user/framecore/pkg/ports"
)

// signal is a single-slot counting semaphore: Release is idempotent
// while a pending signal is unconsumed, and Chan observes exactly
// one pending signal at a time. It deliberately does not queue multiple
// releases — the waiter re-checks its own condition after each wakeup,
// per the cache-reprobe pattern the coordinator uses.
type signal struct {
	ch chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{}, 1)}
}

func (s *signal) Release() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *signal) Chan() <-chan struct{} {
	return s.ch
}

// Decoder is the subset of ports.DecoderDriver the worker depends on.
type Decoder interface {
	DecodeRange(ctx context.Context, start time.Duration, maxLength *time.Duration) (<-chan *frame.Frame, <-chan error)
}

// CacheAdder is the subset of the cache the worker depends on.
type CacheAdder interface {
	Add(fr *frame.Frame) bool
}

// generation is one run of the worker's decode loop, from
// EnsureStartedAt through its natural end or cancellation.
type generation struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Worker drives one long-lived decode stream, pushing each produced
// frame into the cache and pausing whenever decoding has run far enough
// ahead of demand.
type Worker struct {
	decoder       Decoder
	cache         CacheAdder
	frameDuration time.Duration
	publishFrame  func(*frame.Frame)
	reportError   func(error)
	log           ports.Logger

	lifecycleMu sync.Mutex
	current     *generation

	mu                 sync.Mutex
	demandTime         time.Duration
	demandSet          bool
	decodedUntil       time.Duration
	decodedSet         bool
	decodeChunkLength  time.Duration
	targetLookAhead    time.Duration
	demandSignal       *signal
	arrivalSignal      *signal
}

// New creates a worker bound to decoder and cache, with callbacks for
// publishing a frame and reporting an asynchronous, non-fatal error.
// publishFrame and reportError are closures supplied by the owning
// session; the worker package never imports the session package, so
// there is no import cycle between worker and its owner.
func New(decoder Decoder, cache CacheAdder, frameDuration time.Duration, publishFrame func(*frame.Frame), reportError func(error), log ports.Logger) *Worker {
	return &Worker{
		decoder:           decoder,
		cache:             cache,
		frameDuration:     frameDuration,
		publishFrame:      publishFrame,
		reportError:       reportError,
		log:               log,
		decodeChunkLength: frameDuration * 30,
		targetLookAhead:   frameDuration * 60,
		demandSignal:      newSignal(),
		arrivalSignal:     newSignal(),
	}
}

// ArrivalChan exposes the frame-arrival signal for the coordinator's
// bounded wait.
func (w *Worker) ArrivalChan() <-chan struct{} {
	return w.arrivalSignal.Chan()
}

// SignalArrival releases the frame-arrival signal on behalf of a
// producer outside the run loop (the coordinator's single-frame decode
// path also inserts into the cache).
func (w *Worker) SignalArrival() {
	w.arrivalSignal.Release()
}

// IsRunning reports whether a worker generation is currently active.
func (w *Worker) IsRunning() bool {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	return w.current != nil
}

// DecodedUntil returns the highest frame timestamp emitted so far, and
// whether any frame has been emitted yet.
func (w *Worker) DecodedUntil() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.decodedUntil, w.decodedSet
}

// Strategy returns the currently instructed chunk length and look-ahead.
func (w *Worker) Strategy() (chunk, lookAhead time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.decodeChunkLength, w.targetLookAhead
}

// EnsureStartedAt starts a fresh worker generation seeked to start,
// cancelling (without awaiting) any previous generation. sessionCtx is
// the session-wide lifetime the new generation's cancellation is linked
// to.
func (w *Worker) EnsureStartedAt(sessionCtx context.Context, start time.Duration) {
	if sessionCtx.Err() != nil {
		return
	}
	w.lifecycleMu.Lock()
	prev := w.current

	genCtx, cancel := context.WithCancel(sessionCtx)
	gen := &generation{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	w.current = gen
	w.lifecycleMu.Unlock()

	w.mu.Lock()
	w.decodedUntil = 0
	w.decodedSet = false
	w.demandTime = start
	w.demandSet = true
	w.mu.Unlock()
	w.demandSignal.Release()

	if w.log != nil {
		w.log.Info("worker generation %s started at %s", gen.id, start)
	}

	go w.run(genCtx, gen, start)

	if prev != nil {
		go func() {
			prev.cancel()
			<-prev.done
		}()
	}
}

// UpdateDemand advances demand_time monotonically and releases the
// demand signal.
func (w *Worker) UpdateDemand(t time.Duration) {
	w.mu.Lock()
	if !w.demandSet || t > w.demandTime {
		w.demandTime = t
		w.demandSet = true
	}
	w.mu.Unlock()
	w.demandSignal.Release()
}

// UpdateStrategy normalizes look-ahead to be at least
// max(chunk, 2*frameDuration) and releases the demand signal so the run
// loop re-evaluates should_wait_for_demand under the new tunables.
func (w *Worker) UpdateStrategy(chunk, lookAhead time.Duration) {
	minLookAhead := chunk
	if twoFrames := 2 * w.frameDuration; twoFrames > minLookAhead {
		minLookAhead = twoFrames
	}
	if lookAhead < minLookAhead {
		lookAhead = minLookAhead
	}
	w.mu.Lock()
	w.decodeChunkLength = chunk
	w.targetLookAhead = lookAhead
	w.mu.Unlock()
	w.demandSignal.Release()
}

// Stop cancels the active generation and awaits its completion.
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	gen := w.current
	w.current = nil
	w.lifecycleMu.Unlock()
	if gen == nil {
		return
	}
	gen.cancel()
	<-gen.done
	if w.log != nil {
		w.log.Info("worker generation %s stopped", gen.id)
	}
}

// run is the worker task body: consume decoder.DecodeRange(start, nil)
// (continuous), publish each frame to the cache, and throttle via
// should_wait_for_demand.
func (w *Worker) run(ctx context.Context, gen *generation, start time.Duration) {
	defer close(gen.done)
	defer w.clearIfCurrent(gen)

	frames, errCh := w.decoder.DecodeRange(ctx, start, nil)

	for fr := range frames {
		if !w.cache.Add(fr) {
			fr.Release()
		} else {
			w.publishFrame(fr)
		}

		w.mu.Lock()
		if !w.decodedSet || fr.Time > w.decodedUntil {
			w.decodedUntil = fr.Time
			w.decodedSet = true
		}
		w.mu.Unlock()
		w.arrivalSignal.Release()

		for w.shouldWaitForDemand() {
			select {
			case <-ctx.Done():
				drainRemaining(frames)
				return
			case <-w.demandSignal.Chan():
			}
		}
	}

	if err := <-errCh; err != nil && ctx.Err() == nil {
		if w.log != nil {
			w.log.Warn("worker decode stream ended: %s", err.Error())
		}
		if w.reportError != nil {
			w.reportError(err)
		}
	}
}

func drainRemaining(frames <-chan *frame.Frame) {
	for fr := range frames {
		fr.Release()
	}
}

// shouldWaitForDemand reports whether decoding has run far enough
// ahead: decodedUntil >= demandTime + max(lookAhead, chunk).
func (w *Worker) shouldWaitForDemand() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.decodedSet || !w.demandSet {
		return false
	}
	span := w.targetLookAhead
	if w.decodeChunkLength > span {
		span = w.decodeChunkLength
	}
	threshold := w.demandTime + span
	return w.decodedUntil >= threshold
}

func (w *Worker) clearIfCurrent(gen *generation) {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	if w.current == gen {
		w.current = nil
	}
}
