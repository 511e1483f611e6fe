package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hookrelay/pkg/logging"
)

// Logger is the structured logger shared by the relay. The ctx-aware methods
// prepend the request and trace ids carried by ctx.
type Logger interface {
	DebugwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	InfowCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	WarnwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	ErrorwCtx(ctx context.Context, msg string, keysAndValues ...interface{})

	// With returns a child logger that adds keysAndValues to every entry.
	With(keysAndValues ...interface{}) Logger
	Sync() error
}

type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is "json" or "console". Empty means json.
	Format string
	// Service is attached to every entry as service_name.
	Service string
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

func New(opts Options) (Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var encoder zapcore.Encoder
	switch opts.Format {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig())
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig())
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(level))
	return newWithCore(core, opts.Service), nil
}

func newWithCore(core zapcore.Core, service string) Logger {
	base := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if service != "" {
		base = base.With(zap.String("service_name", service))
	}
	return &zapLogger{sugar: base.Sugar()}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func (l *zapLogger) DebugwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, withContext(ctx, keysAndValues)...)
}

func (l *zapLogger) InfowCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, withContext(ctx, keysAndValues)...)
}

func (l *zapLogger) WarnwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, withContext(ctx, keysAndValues)...)
}

func (l *zapLogger) ErrorwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, withContext(ctx, keysAndValues)...)
}

func (l *zapLogger) With(keysAndValues ...interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(keysAndValues...)}
}

func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}

func withContext(ctx context.Context, keysAndValues []interface{}) []interface{} {
	fields := logging.GetLogFields(ctx)
	if len(fields) == 0 {
		return keysAndValues
	}
	return append(fields, keysAndValues...)
}

func NopLogger() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}
