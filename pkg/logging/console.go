package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

// ConsoleLogger renders log lines for a terminal through a tint slog handler.
type ConsoleLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// NewConsoleLogger creates a colorized human-readable logger
func NewConsoleLogger(w io.Writer, level Level, noColor bool) *ConsoleLogger {
	lv := new(slog.LevelVar)
	lv.Set(toSlogLevel(level))
	handler := tint.NewHandler(w, &tint.Options{
		Level:      lv,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	})
	return &ConsoleLogger{logger: slog.New(handler), level: lv}
}

func (c *ConsoleLogger) emit(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if !c.logger.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	c.logger.LogAttrs(ctx, level, msg, attrs...)
}

func (c *ConsoleLogger) Debug(msg string, fields ...Field) { c.emit(slog.LevelDebug, msg, fields) }
func (c *ConsoleLogger) Info(msg string, fields ...Field)  { c.emit(slog.LevelInfo, msg, fields) }
func (c *ConsoleLogger) Warn(msg string, fields ...Field)  { c.emit(slog.LevelWarn, msg, fields) }
func (c *ConsoleLogger) Error(msg string, fields ...Field) { c.emit(slog.LevelError, msg, fields) }

// With creates a child logger with the given fields pre-set
func (c *ConsoleLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, slog.Any(f.Key, f.Value))
	}
	return &ConsoleLogger{logger: c.logger.With(args...), level: c.level}
}

func (c *ConsoleLogger) SetLevel(level Level) {
	c.level.Set(toSlogLevel(level))
}

func (c *ConsoleLogger) GetLevel() Level {
	switch l := c.level.Level(); {
	case l <= slog.LevelDebug:
		return DebugLevel
	case l <= slog.LevelInfo:
		return InfoLevel
	case l <= slog.LevelWarn:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger for the given format ("json" or "console").
func New(w io.Writer, format string, level Level) Logger {
	if format == "console" {
		return NewConsoleLogger(w, level, false)
	}
	return NewJSONLogger(w, level)
}
