package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	sugar  *zap.SugaredLogger
)

// Init initializes the global logger. Verbose enables debug-level output;
// otherwise the level comes from the configured level string.
func Init(verbose bool, level string) {
	zapLevel := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		zapLevel = parsed
	}
	if verbose {
		zapLevel = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		built = zap.NewNop()
	}

	logger = built
	sugar = built.Sugar()
	zap.ReplaceGlobals(built)
}

// Close flushes any buffered log entries.
func Close() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// Debug logs a debug message with alternating key/value pairs
func Debug(msg string, args ...any) {
	if sugar != nil {
		sugar.Debugw(msg, args...)
	}
}

// Info logs an info message with alternating key/value pairs
func Info(msg string, args ...any) {
	if sugar != nil {
		sugar.Infow(msg, args...)
	}
}

// Warn logs a warning message with alternating key/value pairs
func Warn(msg string, args ...any) {
	if sugar != nil {
		sugar.Warnw(msg, args...)
	}
}

// Error logs an error message with alternating key/value pairs
func Error(msg string, args ...any) {
	if sugar != nil {
		sugar.Errorw(msg, args...)
	}
}
