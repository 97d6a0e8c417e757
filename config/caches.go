package config

import (
	"log/slog"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/metric"
	"github.com/c360/semcache/pkg/cache"
)

// NewCache builds the named cache from cfg. The cache gets the configured
// diagnostics and, when registry is non-nil, exports metrics under the
// cache's metrics_prefix or, failing that, its name.
func NewCache[K comparable, V any](cfg *Config, name string, registry *metric.MetricsRegistry, logger *slog.Logger) (*cache.Cache[K, V], error) {
	if cfg == nil {
		return nil, errors.InvalidArgument("config", "NewCache", "config")
	}
	cc, ok := cfg.Cache(name)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "config", "NewCache", "lookup cache "+name)
	}

	diag, err := cfg.Diagnostics.Build(logger, registry)
	if err != nil {
		return nil, err
	}

	opts := []cache.Option[K, V]{
		cache.WithName[K, V](name),
		cache.WithDiagnostics[K, V](diag),
	}
	if registry != nil {
		if cc.MetricsPrefix == "" {
			cc.MetricsPrefix = name
		}
		opts = append(opts, cache.WithMetricsRegistry[K, V](registry))
	}
	return cache.NewFromConfig[K, V](cc, opts...)
}
