package logger

import (
	"context"
	"sync"
)

// LoggerContext accumulates attributes over the course of an operation so
// that each log call carries the full set collected so far. It is handy in
// long dispatch paths where attributes become known incrementally.
type LoggerContext struct {
	mu   sync.Mutex
	base *Logger
}

// NewLoggerContext wraps the provided logger in a LoggerContext.
func NewLoggerContext(base *Logger) *LoggerContext {
	return &LoggerContext{base: base}
}

// Add appends attributes to every subsequent log call made through this
// context. Attributes are alternating key/value pairs.
func (lc *LoggerContext) Add(args ...any) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.base = lc.base.With(args...)
}

// Debug logs at LevelDebug with the accumulated attributes.
func (lc *LoggerContext) Debug(ctx context.Context, msg string, args ...any) {
	lc.logger().Debugc(ctx, 4, msg, args...)
}

// Info logs at LevelInfo with the accumulated attributes.
func (lc *LoggerContext) Info(ctx context.Context, msg string, args ...any) {
	lc.logger().Infoc(ctx, 4, msg, args...)
}

// Warn logs at LevelWarn with the accumulated attributes.
func (lc *LoggerContext) Warn(ctx context.Context, msg string, args ...any) {
	lc.logger().Warn(ctx, msg, args...)
}

// Error logs at LevelError with the accumulated attributes.
func (lc *LoggerContext) Error(ctx context.Context, msg string, args ...any) {
	lc.logger().Error(ctx, msg, args...)
}

func (lc *LoggerContext) logger() *Logger {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.base
}
