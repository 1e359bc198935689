package logger

import "github.com/user/framecore/pkg/ports"

// NoopLogger discards every message, for quiet mode and for sessions
// opened without a logger.
type NoopLogger struct{}

// NewNoop creates a no-op logger.
func NewNoop() *NoopLogger { return &NoopLogger{} }

func (NoopLogger) Debug(string, ...interface{}) {}
func (NoopLogger) Info(string, ...interface{})  {}
func (NoopLogger) Warn(string, ...interface{})  {}
func (NoopLogger) Error(string, ...interface{}) {}

// WithComponent returns the same no-op logger.
func (NoopLogger) WithComponent(string) ports.Logger { return NoopLogger{} }
