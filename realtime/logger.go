package realtime

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel is the minimum level a Logger emits.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota + 1
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelEvent
)

// slog has no level above error, so events sit just past it.
const slogLevelEvent = slog.LevelError + 4

func (level LogLevel) slogLevel() slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelEvent:
		return slogLevelEvent
	default:
		return slog.LevelError
	}
}

func (level LogLevel) String() string {
	switch level {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelEvent:
		return "event"
	default:
		return "error"
	}
}

// ParseLogLevel maps a level name to a LogLevel, defaulting to error.
func ParseLogLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "event":
		return LogLevelEvent
	default:
		return LogLevelError
	}
}

// Logger is the leveled diagnostics sink used by the client. Nothing the
// client does depends on what a Logger does with its input.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Event(msg string, args ...any)
}

type slogLogger struct {
	logger *slog.Logger
}

// NewLogger returns a Logger writing text records at or above level to w.
// A nil w writes to stderr.
func NewLogger(level LogLevel, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level.slogLevel(),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := attr.Value.Any().(slog.Level); ok && lvl == slogLevelEvent {
					attr.Value = slog.StringValue("EVENT")
				}
			}
			return attr
		},
	})
	return WrapSlog(slog.New(handler))
}

// WrapSlog adapts an existing *slog.Logger.
func WrapSlog(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &slogLogger{logger: logger.With("component", "realtime")}
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *slogLogger) Event(msg string, args ...any) {
	l.logger.Log(context.Background(), slogLevelEvent, msg, args...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Event(string, ...any) {}
