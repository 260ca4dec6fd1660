// Package log provides the small structured-logging facade used across the
// reactor runtime. It wraps go.uber.org/zap so every component logs through
// the same interface without importing zap directly.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging contract every reactor-runtime component depends
// on. Components take a Logger, never a concrete zap type.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	With(fields ...any) Logger
}

// zapLogger adapts *zap.SugaredLogger to the Logger contract.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a production-configured Logger writing to stderr.
func New() Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
	return &zapLogger{sugar: zap.New(core).Sugar()}
}

// Discard returns a Logger that drops every record; useful in tests.
func Discard() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *zapLogger) Debug(args ...any)                  { l.sugar.Debug(args...) }
func (l *zapLogger) Debugf(format string, args ...any)   { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Info(args ...any)                    { l.sugar.Info(args...) }
func (l *zapLogger) Infof(format string, args ...any)    { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warn(args ...any)                    { l.sugar.Warn(args...) }
func (l *zapLogger) Warnf(format string, args ...any)    { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Error(args ...any)                   { l.sugar.Error(args...) }
func (l *zapLogger) Errorf(format string, args ...any)   { l.sugar.Errorf(format, args...) }

func (l *zapLogger) With(fields ...any) Logger {
	return &zapLogger{sugar: l.sugar.With(fields...)}
}
