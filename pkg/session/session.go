package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/user/framecore/pkg/adapters/bitmappool"
	"github.com/user/framecore/pkg/adapters/ffdecoder"
	"github.com/user/framecore/pkg/cache"
	"github.com/user/framecore/pkg/config"
	"github.com/user/framecore/pkg/frame"
	"github.com/user/framecore/pkg/metrics"
	"github.com/user/framecore/pkg/ports"
	"github.com/user/framecore/pkg/worker"
)

// defaultFrameRate is used when the stream probe reports frame_rate <=
// 0 (unknown).
const defaultFrameRate = 60.0

// poolSlack covers buffers in flight beyond the cache itself: the
// chunk sink's bounded output channel and one single-frame fallback
// decode.
const poolSlack = 8 + 2

// Session is the public per-file handle: get_frame by time or index,
// and dispose. One Session owns one cache, one bitmap pool, and one
// sequential decode worker.
type Session struct {
	sourcePath    string
	width         int
	height        int
	frameRate     float64
	frameDuration time.Duration
	duration      time.Duration

	pool   ports.BitmapPool
	cache  *cache.Cache
	worker *worker.Worker
	coord  *coordinator

	log ports.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	disposed sync.Once
}

// Deps bundles the external collaborators a Session needs beyond the
// decoder it builds for itself. Errors, when set, receives the worker's
// asynchronous decode failures in addition to their being logged.
type Deps struct {
	Logger  ports.Logger
	Metrics metrics.Recorder
	Errors  ports.ErrorSink
}

// Open constructs a session for an already-probed stream: sizes its
// bitmap pool and frame cache from cfg, builds its own ffmpeg-backed
// decoder driver, and starts no worker until the first GetFrame call.
// info is the result of a one-time stream metadata probe performed by
// the caller (typically the host's per-path registry).
func Open(parent context.Context, sourcePath string, info ports.StreamInfo, cfg config.Config, deps Deps) (*Session, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("session: no video stream found in %s", sourcePath)
	}

	frameRate := info.FrameRate
	if frameRate <= 0 {
		frameRate = defaultFrameRate
	}
	frameDuration := time.Duration(float64(time.Second) / frameRate)

	rec := deps.Metrics
	if rec == nil {
		rec = metrics.Noop{}
	}

	cacheSize := cfg.ResolveCacheSize(info.Width, info.Height)
	quantum := frame.DefaultQuantum(frameDuration)
	c := cache.New(cacheSize, quantum)

	ctx, cancel := context.WithCancel(parent)

	var workerLog, sessionLog, decoderLog ports.Logger
	if deps.Logger != nil {
		workerLog = deps.Logger.WithComponent("worker")
		sessionLog = deps.Logger.WithComponent("session")
		decoderLog = deps.Logger.WithComponent("decoder")
	}

	pool := bitmappool.New(info.Width, info.Height, cacheSize+poolSlack)

	decoderOpts := []ffdecoder.Option{ffdecoder.WithLogger(decoderLog)}
	if cfg.HardwareDecode {
		decoderOpts = append(decoderOpts, ffdecoder.WithHardwareAccel(resolveHwaccelAPI(cfg.HardwareDecodeAPI)))
	}
	decoder := ffdecoder.New(sourcePath, info.Width, info.Height, frameDuration, pool, decoderOpts...)

	s := &Session{
		sourcePath:    sourcePath,
		width:         info.Width,
		height:        info.Height,
		frameRate:     frameRate,
		frameDuration: frameDuration,
		duration:      info.Duration,
		pool:          pool,
		cache:         c,
		log:           sessionLog,
		ctx:           ctx,
		cancel:        cancel,
	}

	reportError := func(err error) {
		if sessionLog != nil {
			sessionLog.Error("decode failed at %s: %s", sourcePath, err.Error())
		}
		if deps.Errors != nil {
			deps.Errors.ReportError(err)
		}
	}
	publishFrame := func(_ *frame.Frame) {
		rec.FrameDecoded()
	}

	s.worker = worker.New(decoder, c, frameDuration, publishFrame, reportError, workerLog)
	s.coord = newCoordinator(ctx, decoder, c, s.worker, frameDuration, info.Duration, cacheSize, sessionLog, rec)

	if sessionLog != nil {
		sessionLog.Info("session started for %s (%dx%d @ %.2f fps)", sourcePath, info.Width, info.Height, frameRate)
	}

	return s, nil
}

// resolveHwaccelAPI maps an unrecognised hardware_decode_api value to
// "auto".
func resolveHwaccelAPI(api string) string {
	switch api {
	case "auto", "none", "vdpau", "dxva2", "d3d11va", "vaapi", "qsv", "videotoolbox", "cuda":
		return api
	default:
		return "auto"
	}
}

// GetFrame returns the frame whose time is within seek tolerance of t,
// auto-clamped to [0, duration - frame_duration].
func (s *Session) GetFrame(t time.Duration) (*frame.Frame, error) {
	select {
	case <-s.ctx.Done():
		return nil, ErrDisposed
	default:
	}
	return s.coord.getFrame(t)
}

// GetFrameAtIndex derives time = index / frame_rate and fails if
// frame_rate <= 0. Open substitutes defaultFrameRate for an unknown
// rate, so a session built by Open never takes that error path.
func (s *Session) GetFrameAtIndex(index uint32) (*frame.Frame, error) {
	if s.frameRate <= 0 {
		return nil, fmt.Errorf("session: frame_rate unknown, cannot resolve index %d", index)
	}
	t := time.Duration(float64(index) / s.frameRate * float64(time.Second))
	return s.GetFrame(t)
}

// Dispose cancels the session, stops the worker, and releases every
// cached frame's buffer. Safe to call more than once.
func (s *Session) Dispose() {
	s.disposed.Do(func() {
		s.cancel()
		s.worker.Stop()
		s.cache.Dispose()
		if s.log != nil {
			s.log.Info("session disposed")
		}
	})
}
