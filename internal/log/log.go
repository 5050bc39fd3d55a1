// Package log holds the process-wide slog logger. Components never log
// through it directly; they receive a child via options and tag it with
// a "component" attribute.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var global atomic.Pointer[slog.Logger]

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init replaces the global logger and slog's default. An empty format
// selects JSON when HATSEYE_ENV=production and text otherwise.
func Init(level, format string) *slog.Logger {
	if format == "" {
		format = FormatText
		if os.Getenv("HATSEYE_ENV") == "production" {
			format = FormatJSON
		}
	}
	l := New(os.Stderr, level, format)
	global.Store(l)
	slog.SetDefault(l)
	return l
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// L returns the global logger, initializing it at info level on first use.
func L() *slog.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return Init("info", "")
}
