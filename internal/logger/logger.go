package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var log *slog.Logger

func init() {
	Setup(os.Stderr, os.Getenv("PARTSCOUT_LOG_LEVEL"), os.Getenv("PARTSCOUT_LOG_FORMAT"))
}

// Setup replaces the process logger. level is debug, info, warn or error
// (default info); format "json" switches to one JSON object per line for
// log shippers. PARTSCOUT_DEBUG=true still forces debug.
func Setup(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if os.Getenv("PARTSCOUT_DEBUG") == "true" {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	log = slog.New(handler).With("service", "partscout")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a child logger carrying the given attributes, for components
// that log many lines about the same session or part.
func With(args ...any) *slog.Logger {
	return log.With(args...)
}

func Debug(msg string, args ...any) { log.Debug(msg, args...) }

func Info(msg string, args ...any) { log.Info(msg, args...) }

func Warn(msg string, args ...any) { log.Warn(msg, args...) }

func Error(msg string, args ...any) { log.Error(msg, args...) }

func Fatal(msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(1)
}
