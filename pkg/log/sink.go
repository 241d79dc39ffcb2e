package log

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Sink receives log entries for forwarding to a remote collector.
// Write must not log through a logger that forwards to the same Sink.
type Sink interface {
	Write(level, tag, text string) error
}

// SinkFunc adapts an ordinary function to the Sink interface.
type SinkFunc func(level, tag, text string) error

func (f SinkFunc) Write(level, tag, text string) error { return f(level, tag, text) }

// sinkCore is a zapcore.Core that renders entries as plain text and hands
// them to a Sink. Forwarding errors are dropped.
type sinkCore struct {
	zapcore.LevelEnabler

	sink   Sink
	fields []zapcore.Field
}

func newSinkCore(sink Sink, enab zapcore.LevelEnabler) zapcore.Core {
	if enab == nil {
		enab = zapcore.DebugLevel
	}
	return &sinkCore{LevelEnabler: enab, sink: sink}
}

func (c *sinkCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &sinkCore{LevelEnabler: c.LevelEnabler, sink: c.sink}
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (c *sinkCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *sinkCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)

	_ = c.sink.Write(LevelName(ent.Level), Tag(ent.LoggerName), FormatText(ent.Message, all))
	return nil
}

func (c *sinkCore) Sync() error { return nil }

// LevelName maps a zap level to the wire names debug, info, warn and error.
func LevelName(l zapcore.Level) string {
	switch {
	case l <= zapcore.DebugLevel:
		return "debug"
	case l == zapcore.InfoLevel:
		return "info"
	case l == zapcore.WarnLevel:
		return "warn"
	default:
		return "error"
	}
}

// Tag returns the last segment of a dotted logger name.
func Tag(loggerName string) string {
	if i := strings.LastIndex(loggerName, "."); i >= 0 {
		return loggerName[i+1:]
	}
	return loggerName
}

// FormatText renders a message and its structured fields as a single text
// block. Fields are appended as tab-indented JSON.
func FormatText(msg string, fields []zapcore.Field) string {
	if len(fields) == 0 {
		return msg
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	if len(enc.Fields) == 0 {
		return msg
	}

	b, err := json.MarshalIndent(enc.Fields, "", "\t")
	if err != nil {
		return msg
	}
	if msg == "" {
		return string(b)
	}
	return msg + " " + string(b)
}
