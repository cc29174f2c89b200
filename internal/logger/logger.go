package logger

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
)

type Logger struct {
	logger *log.Logger
	level  LogLevel
	tag    string
}

// NewLogger wraps logger with a level filter. A nil logger discards output.
func NewLogger(logger *log.Logger, level LogLevel) *Logger {
	return &Logger{
		logger: logger,
		level:  level,
		tag:    "",
	}
}

// WithTag creates a new logger with a tag prefix
func (l *Logger) WithTag(tag string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		logger: l.logger,
		level:  l.level,
		tag:    tag,
	}
}

// Level returns the configured level.
func (l *Logger) Level() LogLevel {
	if l == nil {
		return LogLevelNone
	}
	return l.level
}

func (l *Logger) formatMessage(level string, format string) string {
	if l.tag != "" {
		if level != "" {
			return "[" + l.tag + "] " + level + " " + format
		}
		return "[" + l.tag + "] " + format
	}
	if level != "" {
		return level + " " + format
	}
	return format
}

func (l *Logger) output(min LogLevel, level string, format string, v ...interface{}) {
	if l == nil || l.logger == nil || l.level < min {
		return
	}
	l.logger.Printf(l.formatMessage(level, format), v...)
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.output(LogLevelDebug, "DEBUG:", format, v...)
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.output(LogLevelInfo, "", format, v...)
}

// Printf is an alias for Infof for compatibility
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.output(LogLevelWarning, "WARN:", format, v...)
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.output(LogLevelError, "ERROR:", format, v...)
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	if l.logger == nil {
		log.Fatalf(l.formatMessage("FATAL:", format), v...)
	}
	l.logger.Fatalf(l.formatMessage("FATAL:", format), v...)
}

// Slog returns a *slog.Logger writing through l, for libraries that take one
// (librefsm, redis-ipc).
func (l *Logger) Slog() *slog.Logger {
	return slog.New(&slogHandler{l: l})
}

type slogHandler struct {
	l     *Logger
	attrs []slog.Attr
	group string
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.l.Level() >= levelFromSlog(level)
}

func (h *slogHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	write := func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " %s=%v", key, a.Value.Any())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)

	msg := b.String()
	switch levelFromSlog(r.Level) {
	case LogLevelError:
		h.l.Errorf("%s", msg)
	case LogLevelWarning:
		h.l.Warnf("%s", msg)
	case LogLevelInfo:
		h.l.Infof("%s", msg)
	default:
		h.l.Debugf("%s", msg)
	}
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &slogHandler{l: h.l, attrs: merged, group: h.group}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &slogHandler{l: h.l, attrs: h.attrs, group: group}
}

func levelFromSlog(level slog.Level) LogLevel {
	switch {
	case level >= slog.LevelError:
		return LogLevelError
	case level >= slog.LevelWarn:
		return LogLevelWarning
	case level >= slog.LevelInfo:
		return LogLevelInfo
	default:
		return LogLevelDebug
	}
}
