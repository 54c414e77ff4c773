package observe

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// LogLevel represents a logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel parses a string log level.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// zeroLogger is the zerolog-backed Logger.
type zeroLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a JSON logger on stderr with the given level.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON logger writing to w.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	zl := zerolog.New(w).
		Level(ParseLogLevel(level).zerolog()).
		With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

// FromZerolog adapts an existing zerolog logger, such as one with a console
// writer or several outputs.
func FromZerolog(zl zerolog.Logger) Logger {
	return &zeroLogger{zl: zl}
}

// With returns a logger that adds fields to every entry.
func (l *zeroLogger) With(fields ...Field) Logger {
	c := l.zl.With()
	for _, f := range fields {
		if isRedactedField(f.Key) {
			c = c.Str(f.Key, "[REDACTED]")
			continue
		}
		c = c.Interface(f.Key, f.Value)
	}
	return &zeroLogger{zl: c.Logger()}
}

func (l *zeroLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Info(), msg, fields)
}

func (l *zeroLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Warn(), msg, fields)
}

func (l *zeroLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Error(), msg, fields)
}

func (l *zeroLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Debug(), msg, fields)
}

func (l *zeroLogger) log(ctx context.Context, evt *zerolog.Event, msg string, fields []Field) {
	// Disabled levels return a nil event.
	if evt == nil {
		return
	}

	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
	}

	for _, f := range fields {
		if isRedactedField(f.Key) {
			evt = evt.Str(f.Key, "[REDACTED]")
			continue
		}
		switch v := f.Value.(type) {
		case error:
			evt = evt.Str(f.Key, v.Error())
		case fmt.Stringer:
			evt = evt.Str(f.Key, v.String())
		default:
			evt = evt.Interface(f.Key, v)
		}
	}
	evt.Msg(msg)
}

// isRedactedField returns true if the field should be redacted.
func isRedactedField(key string) bool {
	return slices.Contains(RedactedFields, key)
}

var _ Logger = (*zeroLogger)(nil)
