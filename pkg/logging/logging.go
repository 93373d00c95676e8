// Package logging configures structured logging for Awalnet.
//
// Server and client both log through Go's standard log/slog; this package
// only installs the default handler from the level/format configuration.
//
// Usage:
//
//	logging.Setup("debug", "text", nil)
//	slog.Info("lobby listening", "addr", addr)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a level name to slog.Level. Unrecognized values
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs the global slog handler. format is "text" or "json";
// a nil out writes to stdout. Call early in main() before any logging.
func Setup(level, format string, out io.Writer) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("logging: unknown log level %q (valid: debug, info, warn, error)", level)
	}

	if out == nil {
		out = os.Stdout
	}

	lv := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lv,
		AddSource: lv == slog.LevelDebug, // include file:line in debug mode
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
