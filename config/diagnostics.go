package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/metric"
	"github.com/c360/semcache/pkg/lifecycle"
)

// Log formats accepted by DiagnosticsConfig.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// DiagnosticsConfig controls logging, leak flagging and lifecycle metrics.
type DiagnosticsConfig struct {
	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty"`   // debug, info, warn, error
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty"` // json or text
	FlagLeaks bool   `json:"flag_leaks" yaml:"flag_leaks"`
	Metrics   bool   `json:"metrics" yaml:"metrics"`
}

// Level returns the configured slog level. An empty level means info.
func (d DiagnosticsConfig) Level() (slog.Level, error) {
	var level slog.Level
	if d.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(d.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", d.LogLevel)
	}
	return level, nil
}

// Validate checks the log level and format.
func (d DiagnosticsConfig) Validate() error {
	if _, err := d.Level(); err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}
	switch strings.ToLower(d.LogFormat) {
	case "", LogFormatJSON, LogFormatText:
		return nil
	default:
		return fmt.Errorf("diagnostics: unknown log format %q", d.LogFormat)
	}
}

// NewLogger builds a logger writing to stderr with the configured level and format.
func (d DiagnosticsConfig) NewLogger() (*slog.Logger, error) {
	level, err := d.Level()
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "DiagnosticsConfig", "NewLogger", err.Error())
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(d.LogFormat) == LogFormatText {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
}

// Build produces the lifecycle diagnostics described by the config. A nil
// logger is replaced by one from NewLogger. Lifecycle metrics are only wired
// when Metrics is set and a registry is supplied.
func (d DiagnosticsConfig) Build(logger *slog.Logger, registry *metric.MetricsRegistry) (lifecycle.Diagnostics, error) {
	if logger == nil {
		var err error
		if logger, err = d.NewLogger(); err != nil {
			return lifecycle.Diagnostics{}, err
		}
	}

	diag := lifecycle.Diagnostics{
		Logger:    logger,
		FlagLeaks: d.FlagLeaks,
	}
	if d.Metrics && registry != nil {
		diag.Metrics = registry.CoreMetrics()
	}
	return diag, nil
}
