package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the standard logging interface for denhub components.
type Logger interface {
	// Debug logs a message at DebugLevel.
	Debug(msg string, keysAndValues ...any)

	// Info logs a message at InfoLevel.
	Info(msg string, keysAndValues ...any)

	// Warn logs a message at WarnLevel.
	Warn(msg string, keysAndValues ...any)

	// Error logs a message at ErrorLevel.
	Error(err error, msg string, keysAndValues ...any)

	// WithName returns a new logger with the specified name appended.
	// The last name segment is used as the tag of forwarded entries.
	WithName(name string) Logger

	// WithValues returns a new logger with additional key-value pairs.
	WithValues(keysAndValues ...any) Logger

	// Local returns a logger that writes to the console only and never
	// forwards entries to the attached Sink.
	Local() Logger

	// Logr returns a logr.Logger adapter.
	Logr() logr.Logger
}

// Static check to ensure zapLogger satisfies the Logger interface.
var _ Logger = (*zapLogger)(nil)

// zapLogger is the implementation of the Logger interface using zap.
// core may tee into a Sink, local never does.
type zapLogger struct {
	core  *zap.Logger
	local *zap.Logger
}

// Option customizes a logger built by NewLogger.
type Option func(*buildOptions)

type buildOptions struct {
	sink      Sink
	sinkLevel zapcore.LevelEnabler
}

// WithSink forwards every entry at or above level to sink in addition to the console.
func WithSink(sink Sink, level zapcore.Level) Option {
	return func(o *buildOptions) {
		o.sink = sink
		o.sinkLevel = level
	}
}

// NewLogger creates a new Logger instance based on the provided options.
func NewLogger(opts *Options, options ...Option) Logger {
	if opts == nil {
		opts = NewOptions()
	}

	bo := &buildOptions{}
	for _, o := range options {
		o(bo)
	}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:    "message",
		LevelKey:      "level",
		TimeKey:       "timestamp",
		NameKey:       "logger",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeDuration: func(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendFloat64(float64(d) / float64(time.Millisecond))
		},
	}

	if opts.Format == "console" && opts.EnableColor {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(opts.Level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	// Quiet hides debug and info lines on the console; forwarding is unaffected.
	if opts.Quiet && zapLevel < zapcore.WarnLevel {
		zapLevel = zapcore.WarnLevel
	}

	outputPaths := opts.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	cfg := &zap.Config{
		DisableCaller:    opts.DisableCaller,
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         opts.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	local, err := cfg.Build(zap.AddCallerSkip(opts.CallerSkip), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		panic(fmt.Sprintf("failed to build zap logger: %v", err))
	}

	if opts.Name != "" {
		local = local.Named(opts.Name)
	}

	core := local
	if bo.sink != nil {
		core = local.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, newSinkCore(bo.sink, bo.sinkLevel))
		}))
	}

	return &zapLogger{core: core, local: local}
}

// The package-level helpers add one frame on top of the Logger methods.
func Debug(msg string, keysAndValues ...any)            { helpers().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)             { helpers().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)             { helpers().Warn(msg, keysAndValues...) }
func Error(err error, msg string, keysAndValues ...any) { helpers().Error(err, msg, keysAndValues...) }
func WithName(name string) Logger                       { return Std().WithName(name) }
func WithValues(keysAndValues ...any) Logger            { return Std().WithValues(keysAndValues...) }
func Logr() logr.Logger                                 { return Std().Logr() }

func (z *zapLogger) Debug(msg string, keysAndValues ...any) {
	z.core.Debug(msg, toFields(keysAndValues...)...)
}

func (z *zapLogger) Info(msg string, keysAndValues ...any) {
	z.core.Info(msg, toFields(keysAndValues...)...)
}

func (z *zapLogger) Warn(msg string, keysAndValues ...any) {
	z.core.Warn(msg, toFields(keysAndValues...)...)
}

func (z *zapLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := toFields(keysAndValues...)

	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	z.core.Error(msg, fields...)
}

func (z *zapLogger) WithName(name string) Logger {
	return &zapLogger{core: z.core.Named(name), local: z.local.Named(name)}
}

func (z *zapLogger) WithValues(keysAndValues ...any) Logger {
	fields := toFields(keysAndValues...)
	return &zapLogger{core: z.core.With(fields...), local: z.local.With(fields...)}
}

func (z *zapLogger) Local() Logger {
	return &zapLogger{core: z.local, local: z.local}
}

// Logr returns a logr view. zapr accounts for the logr frame itself, so the
// frame reserved for the Logger methods is given back.
func (z *zapLogger) Logr() logr.Logger {
	return zapr.NewLogger(z.core.WithOptions(zap.AddCallerSkip(-1)))
}

func (z *zapLogger) withCallerSkip(n int) *zapLogger {
	return &zapLogger{
		core:  z.core.WithOptions(zap.AddCallerSkip(n)),
		local: z.local.WithOptions(zap.AddCallerSkip(n)),
	}
}

var (
	mu   sync.RWMutex
	once sync.Once

	std     = NewNopLogger()
	stdFunc = std
)

// Init initializes the global logger with the provided options.
// It is safe to call Init multiple times.
func Init(opts *Options) {
	once.Do(func() {
		SetStd(NewLogger(opts))
	})
}

// SetStd replaces the global logger.
func SetStd(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	std = l
	stdFunc = l
	if z, ok := l.(*zapLogger); ok {
		stdFunc = z.withCallerSkip(1)
	}
}

func helpers() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return stdFunc
}

// Std returns the global logger instance.
func Std() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// NewNopLogger returns a logger that performs no operations.
func NewNopLogger() Logger {
	nop := zap.NewNop()
	return &zapLogger{core: nop, local: nop}
}
