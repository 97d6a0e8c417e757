package cache

import (
	"log/slog"

	"github.com/c360/semcache/metric"
	"github.com/c360/semcache/pkg/lifecycle"
)

// Option configures cache behavior using the functional options pattern.
type Option[K comparable, V any] func(*cacheOptions[K, V])

// cacheOptions holds internal configuration for cache instances.
// Stats are always collected; metrics are optional and enabled with WithMetrics.
type cacheOptions[K comparable, V any] struct {
	name          string
	strategy      Strategy[K, V]
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
	diag          lifecycle.Diagnostics
	logger        *slog.Logger
}

// WithStrategy sets the caching strategy. Nil is ignored.
// The default is a ReferenceCountingStrategy.
func WithStrategy[K comparable, V any](strategy Strategy[K, V]) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		if strategy != nil {
			opts.strategy = strategy
		}
	}
}

// WithMetrics enables Prometheus metrics export for cache statistics.
// If registry is nil or prefix is empty, this option is ignored.
func WithMetrics[K comparable, V any](registry *metric.MetricsRegistry, prefix string) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithMetricsRegistry sets the registry only. Metrics are exported once a
// prefix is also known, for example from Config.MetricsPrefix.
func WithMetricsRegistry[K comparable, V any](registry *metric.MetricsRegistry) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		if registry != nil {
			opts.metricsReg = registry
		}
	}
}

// WithDiagnostics sets the diagnostics of the cache's lifecycle.
func WithDiagnostics[K comparable, V any](diag lifecycle.Diagnostics) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		opts.diag = diag
	}
}

// WithLogger sets the logger. It overrides the diagnostics logger.
func WithLogger[K comparable, V any](logger *slog.Logger) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithName sets the name used for the cache's lifecycle, logs and metric labels.
func WithName[K comparable, V any](name string) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		if name != "" {
			opts.name = name
		}
	}
}

func applyOptions[K comparable, V any](options ...Option[K, V]) *cacheOptions[K, V] {
	opts := &cacheOptions[K, V]{
		name: "cache",
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	if opts.strategy == nil {
		opts.strategy = NewReferenceCountingStrategy[K, V]()
	}
	if opts.logger != nil {
		opts.diag.Logger = opts.logger
	}

	return opts
}
