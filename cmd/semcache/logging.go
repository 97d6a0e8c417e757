package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/c360/semcache/config"
)

// setupLogger builds the process logger. Flag values override the
// configuration's diagnostics settings.
func setupLogger(diag config.DiagnosticsConfig, level, format string) *slog.Logger {
	if level != "" {
		diag.LogLevel = level
	}
	if format != "" {
		diag.LogFormat = format
	}

	logLevel, err := diag.Level()
	if err != nil {
		logLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(diag.LogFormat) {
	case config.LogFormatText:
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}
