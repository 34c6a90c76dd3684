// Package logger defines the structured logging contract used across the
// payment engine. Callers pass any implementation; NoopLogger is the
// default when none is configured.
package logger

// Logger is a leveled structured logger. Fields carry event context such
// as endpoint, network, and chainId.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
