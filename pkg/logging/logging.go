// Package logging configures colored structured logging with tint.
//
// Usage:
//
//	logger := logging.Setup("info")           // sets slog.Default too
//	logger := logging.New(os.Stderr, "debug") // standalone, e.g. for tests
//
// Levels: debug, info, warn, error (default: info). The level usually comes
// from GAMBLE_LOG_LEVEL through the config package.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup installs a tint handler on stderr as the default logger and
// returns it.
func Setup(level string) *slog.Logger {
	logger := New(os.Stderr, level)
	slog.SetDefault(logger)
	return logger
}

// New builds a tint logger writing to w. Color is disabled when w is not
// stderr so captured output stays plain.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      ParseLevel(level),
			TimeFormat: time.Kitchen,
			AddSource:  w == os.Stderr,
			NoColor:    w != os.Stderr,
		}),
	)
}

// ParseLevel maps a level name to slog.Level. Unknown names mean info.
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
