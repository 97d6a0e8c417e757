package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	Duration        time.Duration
	Workers         int
	Keys            int
	FailureRate     float64
	Rate            float64
	Watch           time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

// layerFlags collects repeated -config flags.
type layerFlags []string

func (l *layerFlags) String() string { return fmt.Sprint(*l) }

func (l *layerFlags) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	var layers layerFlags
	fs.Var(&layers, "config", "Config file layer, repeatable; later layers override earlier ones (env: SEMCACHE_CONFIG)")
	fs.Var(&layers, "c", "Shorthand for -config")

	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("SEMCACHE_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error; overrides the config file (env: SEMCACHE_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("SEMCACHE_LOG_FORMAT", ""),
		"Log format: json, text; overrides the config file (env: SEMCACHE_LOG_FORMAT)")
	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("SEMCACHE_DEBUG", false),
		"Enable debug logging (env: SEMCACHE_DEBUG)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", getEnvDuration("SEMCACHE_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Time allowed for disposing the caches (env: SEMCACHE_SHUTDOWN_TIMEOUT)")
	fs.DurationVar(&cfg.Duration, "duration", 5*time.Second,
		"How long to run the workload, 0 to run until interrupted")
	fs.IntVar(&cfg.Workers, "workers", getEnvInt("SEMCACHE_WORKERS", 8),
		"Concurrent workers per cache (env: SEMCACHE_WORKERS)")
	fs.IntVar(&cfg.Keys, "keys", 256, "Distinct keys the workload draws from")
	fs.Float64Var(&cfg.FailureRate, "failure-rate", 0.05, "Fraction of factory attempts that fail transiently")
	fs.Float64Var(&cfg.Rate, "rate", getEnvFloat("SEMCACHE_RATE", 0),
		"Requests per second per cache, 0 for unlimited (env: SEMCACHE_RATE)")
	fs.DurationVar(&cfg.Watch, "watch", 0, "Poll the config files at this interval and log changes, 0 to disable")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ShowHelp {
		fs.Usage()
		return nil, flag.ErrHelp
	}

	cfg.ConfigPaths = layers
	if len(cfg.ConfigPaths) == 0 {
		if env := os.Getenv("SEMCACHE_CONFIG"); env != "" {
			cfg.ConfigPaths = []string{env}
		}
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if len(cfg.ConfigPaths) == 0 {
		return fmt.Errorf("no config file given, use -config")
	}
	for _, p := range cfg.ConfigPaths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config file not found: %s", p)
		}
	}

	if cfg.LogLevel != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive: %d", cfg.Workers)
	}
	if cfg.Keys <= 0 {
		return fmt.Errorf("keys must be positive: %d", cfg.Keys)
	}
	if cfg.FailureRate < 0 || cfg.FailureRate >= 1 {
		return fmt.Errorf("failure rate must be in [0, 1): %v", cfg.FailureRate)
	}
	if cfg.Rate < 0 {
		return fmt.Errorf("rate must not be negative: %v", cfg.Rate)
	}
	if cfg.Duration < 0 || cfg.Watch < 0 || cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("durations must not be negative and shutdown timeout must be positive")
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	out := fs.Output()
	_, _ = fmt.Fprintf(out, `%s - exercise semcache caches built from configuration

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(out, `
Examples:
  # Run a workload against every configured cache for 30 seconds
  %s -config=configs/example.yaml -duration=30s

  # Layer a production override and log at debug level
  %s -config=configs/example.yaml -config=configs/prod.json -debug

  # Pace each cache at 200 requests per second
  %s -config=configs/example.yaml -rate=200

  # Validate configuration only
  %s -config=configs/example.yaml -validate

Version: %s
Build: %s
`, appName, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
