// Package metrics exposes Prometheus instrumentation for the frame
// cache and decode pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives events from a session's coordinator and worker.
// The no-op implementation records nothing, for sessions that have no
// metrics wired in.
type Recorder interface {
	CacheHit()
	CacheMiss()
	SequentialFallback()
	WorkerRestart()
	DecodeDuration(seconds float64)
	FrameDecoded()
}

// Noop discards every event. It is the default Recorder when a session
// is built without an explicit one.
type Noop struct{}

func (Noop) CacheHit()                      {}
func (Noop) CacheMiss()                     {}
func (Noop) SequentialFallback()            {}
func (Noop) WorkerRestart()                 {}
func (Noop) DecodeDuration(seconds float64) {}
func (Noop) FrameDecoded()                  {}

var _ Recorder = Noop{}

// Prometheus is a Recorder backed by prometheus/client_golang metrics,
// labeled by source so one registry can back multiple concurrently open
// files.
type Prometheus struct {
	source string

	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	workerRestarts  *prometheus.CounterVec
	decodeDurations *prometheus.HistogramVec
	framesDecoded   *prometheus.CounterVec
}

// Metrics bundles the vectors shared across every session registered
// against one Prometheus registerer, so each session's Recorder is a
// thin, source-labeled view over shared collectors.
type Metrics struct {
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	workerRestarts  *prometheus.CounterVec
	decodeDurations *prometheus.HistogramVec
	framesDecoded   *prometheus.CounterVec
}

// NewMetrics registers the shared collector set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framecore",
			Name:      "cache_hits_total",
			Help:      "Frame cache hits, by source file.",
		}, []string{"source"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framecore",
			Name:      "cache_misses_total",
			Help:      "Frame cache misses, by source file.",
		}, []string{"source"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framecore",
			Name:      "sequential_fallbacks_total",
			Help:      "Single-frame fallback decodes taken on a sequential miss, by source file.",
		}, []string{"source"}),
		workerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framecore",
			Name:      "worker_restarts_total",
			Help:      "Sequential decode worker generations started, by source file.",
		}, []string{"source"}),
		decodeDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "framecore",
			Name:      "decode_duration_seconds",
			Help:      "Wall time spent in a single-frame decode, by source file.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framecore",
			Name:      "frames_decoded_total",
			Help:      "Frames the sequential decode worker has produced, by source file.",
		}, []string{"source"}),
	}
	reg.MustRegister(m.cacheHits, m.cacheMisses, m.fallbacks, m.workerRestarts, m.decodeDurations, m.framesDecoded)
	return m
}

// ForSource returns a Recorder that labels every event with source.
func (m *Metrics) ForSource(source string) Recorder {
	return &Prometheus{
		source:          source,
		cacheHits:       m.cacheHits,
		cacheMisses:     m.cacheMisses,
		fallbacks:       m.fallbacks,
		workerRestarts:  m.workerRestarts,
		decodeDurations: m.decodeDurations,
		framesDecoded:   m.framesDecoded,
	}
}

func (p *Prometheus) CacheHit()  { p.cacheHits.WithLabelValues(p.source).Inc() }
func (p *Prometheus) CacheMiss() { p.cacheMisses.WithLabelValues(p.source).Inc() }
func (p *Prometheus) SequentialFallback() {
	p.fallbacks.WithLabelValues(p.source).Inc()
}
func (p *Prometheus) WorkerRestart() {
	p.workerRestarts.WithLabelValues(p.source).Inc()
}
func (p *Prometheus) DecodeDuration(seconds float64) {
	p.decodeDurations.WithLabelValues(p.source).Observe(seconds)
}
func (p *Prometheus) FrameDecoded() {
	p.framesDecoded.WithLabelValues(p.source).Inc()
}

var _ Recorder = (*Prometheus)(nil)
