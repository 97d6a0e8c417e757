package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/cache"
)

// Config represents the complete application configuration.
type Config struct {
	Version     string                  `json:"version,omitempty" yaml:"version,omitempty"` // Semantic version (e.g., "1.0.0")
	Diagnostics DiagnosticsConfig       `json:"diagnostics" yaml:"diagnostics"`
	Caches      map[string]cache.Config `json:"caches,omitempty" yaml:"caches,omitempty"` // Keyed by cache name
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.InvalidArgument("SafeConfig", "Update", "config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	clone := &Config{
		Version:     c.Version,
		Diagnostics: c.Diagnostics,
	}
	if c.Caches != nil {
		clone.Caches = make(map[string]cache.Config, len(c.Caches))
		for name, cc := range c.Caches {
			clone.Caches[name] = cc
		}
	}
	return clone
}

// Cache returns the configuration of the named cache.
func (c *Config) Cache(name string) (cache.Config, bool) {
	cc, ok := c.Caches[name]
	return cc, ok
}

// CacheNames returns the configured cache names in sorted order.
func (c *Config) CacheNames() []string {
	names := make([]string, 0, len(c.Caches))
	for name := range c.Caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the version, the diagnostics settings and every cache.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Version != "" {
		if _, _, _, err := parseSemVer(c.Version); err != nil {
			errs = append(errs, fmt.Errorf("version: %w", err))
		}
	}
	if err := c.Diagnostics.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.CacheNames() {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, stderrors.New("cache name cannot be empty"))
			continue
		}
		if err := c.Caches[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("cache %q: %w", name, err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %w", errors.ErrInvalidConfig, stderrors.Join(errs...)),
		"config", "Validate", "configuration check")
}

// SaveToFile saves the configuration as indented JSON
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.WrapFatal(err, "config", "SaveToFile", "encode config")
	}
	return safeWriteFile(path, data)
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// CompareVersions compares two semver version strings
// Returns:
//
//	-1 if v1 < v2
//	 0 if v1 == v2
//	 1 if v1 > v2
//	error if either version is invalid
func CompareVersions(v1, v2 string) (int, error) {
	a, err := semVerParts(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v1, err)
	}
	b, err := semVerParts(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", v2, err)
	}

	for i := range a {
		switch {
		case a[i] > b[i]:
			return 1, nil
		case a[i] < b[i]:
			return -1, nil
		}
	}
	return 0, nil
}

func semVerParts(version string) ([3]int, error) {
	major, minor, patch, err := parseSemVer(version)
	return [3]int{major, minor, patch}, err
}

// parseSemVer parses a semantic version string (e.g., "1.2.3")
// Returns major, minor, patch, error
func parseSemVer(version string) (int, int, int, error) {
	if version == "" {
		return 0, 0, 0, stderrors.New("version cannot be empty")
	}

	parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("version must be in format 'major.minor.patch', got '%s'", version)
	}

	var nums [3]int
	for i, name := range []string{"major", "minor", "patch"} {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("invalid %s version '%s'", name, parts[i])
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}
