// Package logger wraps zap with the variadic key/value call shape used
// throughout the engine, so callers never import zap directly.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured logger accepting alternating key/value pairs,
// mirroring the Go standard library's slog calling convention.
type Logger struct {
	z *zap.SugaredLogger
}

// New builds a Logger for the given level ("debug", "info", "warn",
// "error") and environment ("development", "production"). Production gets
// JSON output; development gets human-readable console output.
func New(level, environment string) *Logger {
	lvl := zapcore.InfoLevel
	_ = lvl.Set(level)

	var encoder zapcore.Encoder
	if environment == "production" {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "ts"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), lvl)
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()

	return &Logger{z: z}
}

// NewNop returns a Logger that discards all output, for tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop().Sugar()}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.z.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.z.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.z.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.z.Errorw(msg, kv...) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.z.Fatalw(msg, kv...) }

// With returns a child Logger with the given key/value pairs attached to
// every subsequent call, used to scope a logger to a worker or request.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{z: l.z.With(kv...)}
}

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Zap returns the underlying *zap.Logger, for the few collaborators
// (gin middleware, pkg/ratelimit) that need zap's own call shape instead
// of this package's variadic kv convention.
func (l *Logger) Zap() *zap.Logger {
	return l.z.Desugar()
}
