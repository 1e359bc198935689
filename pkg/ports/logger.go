// Package ports defines the interfaces the frame access core uses to talk
// to its external collaborators (logging, the decoder process, pooled
// buffers, stream metadata) without depending on their concrete
// implementations.
package ports

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LevelDebug is for per-frame, per-request internal tracing.
	LevelDebug LogLevel = iota
	// LevelInfo is for session and worker lifecycle events.
	LevelInfo
	// LevelWarn is for recoverable problems: fallbacks, retries, drops.
	LevelWarn
	// LevelError is for unrecoverable problems.
	LevelError
	// LevelQuiet suppresses all log output.
	LevelQuiet
)

// Logger abstracts structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// WithComponent returns a logger tagged with a component name,
	// e.g. "cache", "worker", "coordinator".
	WithComponent(component string) Logger
}
