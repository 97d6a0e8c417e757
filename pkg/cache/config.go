package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/lifecycle"
)

// StrategyKind selects a built-in strategy from configuration.
type StrategyKind string

const (
	// StrategyReferenceCounting removes an entry once every get was released.
	StrategyReferenceCounting StrategyKind = "reference_counting"

	// StrategyLRU keeps the Keep most recently released entries.
	StrategyLRU StrategyKind = "lru"

	// StrategyExpiring removes unreferenced entries after TTL.
	StrategyExpiring StrategyKind = "expiring"

	// StrategyManual never removes entries on its own.
	StrategyManual StrategyKind = "manual"
)

// Config contains configuration for cache creation.
type Config struct {
	// Strategy determines the eviction strategy.
	Strategy StrategyKind `json:"strategy" yaml:"strategy" schema:"editable,type:enum,description:Cache eviction strategy,enum:reference_counting|lru|expiring|manual"`

	// Keep is how many released entries the LRU strategy retains.
	Keep int `json:"keep" yaml:"keep" schema:"editable,type:int,description:Released entries kept by the lru strategy,min:0"`

	// TTL is the grace period of the expiring strategy.
	TTL time.Duration `json:"ttl" yaml:"ttl" schema:"editable,type:string,description:Grace period for the expiring strategy"`

	// MetricsPrefix enables Prometheus export under this component label when a registry is supplied.
	MetricsPrefix string `json:"metrics_prefix,omitempty" yaml:"metrics_prefix,omitempty" schema:"editable,type:string,description:Prometheus component label"`
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyReferenceCounting,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyReferenceCounting, StrategyManual:
	case StrategyLRU:
		if c.Keep < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
				fmt.Sprintf("keep must not be negative for lru cache, got %d", c.Keep))
		}
	case StrategyExpiring:
		if c.TTL <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
				fmt.Sprintf("ttl must be positive for expiring cache, got %v", c.TTL))
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("unknown cache strategy: %s", c.Strategy))
	}
	return nil
}

// NewStrategy builds the configured strategy.
func NewStrategy[K comparable, V any](config Config) (Strategy[K, V], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Strategy {
	case StrategyLRU:
		return NewLeastRecentlyUsedStrategy[K, V](config.Keep)
	case StrategyExpiring:
		return NewExpiringStrategy[K, V](config.TTL)
	case StrategyManual:
		return NoopStrategy[K, V]{}, nil
	default:
		return NewReferenceCountingStrategy[K, V](), nil
	}
}

// NewFromConfig creates a cache based on the provided configuration.
// Additional functional options can configure metrics, logging and naming.
// When the config names a MetricsPrefix, a registry passed with
// WithMetricsRegistry is enough to enable metrics.
func NewFromConfig[K comparable, V any](config Config, options ...Option[K, V]) (*Cache[K, V], error) {
	strategy, err := NewStrategy[K, V](config)
	if err != nil {
		return nil, errors.WrapInvalid(err, "cache", "NewFromConfig", "config validation failed")
	}

	all := append([]Option[K, V]{WithStrategy[K, V](strategy)}, options...)
	if config.MetricsPrefix != "" {
		all = append(all, withConfigMetricsPrefix[K, V](config.MetricsPrefix))
	}
	c, err := New[K, V](all...)
	if err != nil {
		if d, ok := strategy.(lifecycle.Disposable); ok {
			d.Dispose()
		}
		return nil, err
	}
	return c, nil
}

// withConfigMetricsPrefix applies the configured prefix unless an option set one.
func withConfigMetricsPrefix[K comparable, V any](prefix string) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		if opts.metricsPrefix == "" {
			opts.metricsPrefix = prefix
		}
	}
}

// LoadConfigYAML reads a cache configuration from a YAML file.
// Durations accept Go duration strings such as "30s".
func LoadConfigYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WrapFatal(err, "cache", "LoadConfigYAML", "read config file")
	}
	return ParseConfigYAML(data)
}

// ParseConfigYAML parses and validates a YAML cache configuration.
func ParseConfigYAML(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.WrapInvalid(err, "cache", "ParseConfigYAML", "decode yaml")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Config to support
// duration strings (e.g., "1h", "5m", "30s") in addition to nanosecond integers.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config

	aux := &struct {
		TTL json.RawMessage `json:"ttl,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.TTL) > 0 {
		ttl, err := parseDurationField(aux.TTL, "ttl")
		if err != nil {
			return err
		}
		c.TTL = ttl
	}

	return nil
}

// parseDurationField parses a JSON duration field that can be either an
// integer (nanoseconds) or a duration string like "1h".
func parseDurationField(data json.RawMessage, fieldName string) (time.Duration, error) {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		duration, err := time.ParseDuration(str)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", fieldName, err)
		}
		return duration, nil
	}

	var nsec int64
	if err := json.Unmarshal(data, &nsec); err != nil {
		return 0, fmt.Errorf("field %s must be either a duration string (e.g., '1h') or integer nanoseconds", fieldName)
	}
	return time.Duration(nsec), nil
}
