// Package main implements semcache, a command that builds the caches named in
// a configuration file, drives a concurrent get/release workload against them
// and reports their statistics.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/semcache/config"
	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/health"
	"github.com/c360/semcache/metric"
	"github.com/c360/semcache/pkg/cache"
	"github.com/c360/semcache/pkg/lifecycle"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semcache"

	healthInterval = time.Second
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cliCfg, err := parseFlags(args)
	if stderrors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}

	loader := config.NewLoader()
	for _, p := range cliCfg.ConfigPaths {
		loader.AddLayer(p)
	}
	loader.EnableValidation(true)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.Diagnostics, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "caches", cfg.CacheNames())
		return nil
	}
	if len(cfg.Caches) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "main", "run", "configure at least one cache")
	}

	logger.Info("Starting semcache", "build_time", BuildTime, "config_paths", cliCfg.ConfigPaths)

	registry := metric.NewMetricsRegistry(metric.WithRuntimeCollectors())
	diag, err := cfg.Diagnostics.Build(logger, registry)
	if err != nil {
		return err
	}
	root := lifecycle.New(lifecycle.WithName(appName), lifecycle.WithDiagnostics(diag))

	caches, err := buildCaches(root, cfg, registry, logger)
	if err != nil {
		_ = shutdown(root, cliCfg.ShutdownTimeout)
		return err
	}
	monitor := health.NewMonitor(0)
	for _, name := range cfg.CacheNames() {
		if err := monitor.Track(name, caches[name]); err != nil {
			_ = shutdown(root, cliCfg.ShutdownTimeout)
			return err
		}
	}
	if err := monitor.Watch(root, healthInterval); err != nil {
		_ = shutdown(root, cliCfg.ShutdownTimeout)
		return err
	}

	if cliCfg.Watch > 0 {
		if err := watchConfig(root, loader, cliCfg.Watch, logger); err != nil {
			_ = shutdown(root, cliCfg.ShutdownTimeout)
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cliCfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cliCfg.Duration)
		defer cancel()
	}

	src := newDocumentSource(cliCfg.FailureRate)
	w := &workload{source: src, workers: cliCfg.Workers, keys: cliCfg.Keys, rate: cliCfg.Rate, logger: logger}
	workErr := w.run(ctx, caches)

	logger.Info("Workload finished, disposing caches", "loads", src.loads.Load(), "failures", src.failures.Load())
	monitor.Check()
	summary := summarize(caches, monitor.AggregateHealth(appName))
	if !summary.Health.IsHealthy() {
		logger.Warn("Caches not healthy", "status", summary.Health.Status, "message", summary.Health.Message)
	}
	if err := shutdown(root, cliCfg.ShutdownTimeout); err != nil {
		return stderrors.Join(workErr, fmt.Errorf("graceful shutdown failed: %w", err))
	}
	if workErr != nil {
		return workErr
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// buildCaches creates every configured cache and hands it to root.
func buildCaches(
	root *lifecycle.Lifecycle,
	cfg *config.Config,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (map[string]*cache.Cache[string, *document], error) {
	caches := make(map[string]*cache.Cache[string, *document], len(cfg.Caches))
	for _, name := range cfg.CacheNames() {
		c, err := config.NewCache[string, *document](cfg, name, registry, logger)
		if err != nil {
			return nil, fmt.Errorf("create cache %s: %w", name, err)
		}
		if err := root.Manage(c); err != nil {
			c.Dispose()
			return nil, err
		}
		caches[name] = c
		logger.Info("Created cache", "name", name, "strategy", cfg.Caches[name].Strategy)
	}
	return caches, nil
}

// watchConfig logs configuration changes. Caches are not rebuilt; a restart
// applies the new settings.
func watchConfig(root *lifecycle.Lifecycle, loader *config.Loader, interval time.Duration, logger *slog.Logger) error {
	manager, err := config.NewManager(loader, lifecycle.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := root.Manage(manager); err != nil {
		manager.Dispose()
		return err
	}
	if _, err := manager.OnChange("*", func(u config.Update) {
		logger.Warn("Configuration changed, restart to apply", "path", u.Path)
	}); err != nil {
		return err
	}
	return manager.Watch(interval)
}

// shutdown disposes every cache and waits at most timeout.
func shutdown(root *lifecycle.Lifecycle, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return root.Dispose().Wait(ctx)
}

// cacheSummary is the per-cache report printed on exit.
type cacheSummary struct {
	cache.StatsSummary
	Live     int `json:"live"`
	Released int `json:"released"`
}

// runSummary is printed as JSON once the workload stops.
type runSummary struct {
	Health health.Status           `json:"health"`
	Caches map[string]cacheSummary `json:"caches"`
}

func summarize(caches map[string]*cache.Cache[string, *document], status health.Status) runSummary {
	out := runSummary{Health: status, Caches: make(map[string]cacheSummary, len(caches))}
	for name, c := range caches {
		out.Caches[name] = cacheSummary{
			StatsSummary: c.Stats().Summary(),
			Live:         len(c.LiveKeys()),
			Released:     len(c.ReleasedKeys()),
		}
	}
	return out
}
