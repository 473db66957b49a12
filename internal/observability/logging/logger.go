package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger builds the process-wide structured logger. Log lines go
// to stderr so the ask CLI can print answers on stdout without
// interleaving. The logger is also installed as the slog default, which
// covers libraries that log through the package-level functions.
func NewJSONLogger(service, level string) *slog.Logger {
	var leveler slog.LevelVar
	leveler.Set(ParseLevel(level))

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: &leveler,
	})
	logger := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config string to a slog level; unknown values fall
// back to info.
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
