package config

import (
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/lifecycle"
	"github.com/c360/semcache/pkg/stream"
)

// Update represents a configuration change notification
type Update struct {
	Path   string  // Changed path (e.g., "caches.sessions")
	Config *Config // Configuration after the change
}

// Manager holds the current configuration, reloads it from its loader and
// notifies subscribers about the paths that changed. It is a lifecycle;
// disposing it stops watching and cancels every subscription.
type Manager struct {
	*lifecycle.Lifecycle

	loader  *Loader
	config  *SafeConfig
	updates *stream.Controller[Update]

	mu       sync.Mutex // serializes reloads
	modTimes map[string]time.Time
}

// NewManager loads the initial configuration with validation enabled.
func NewManager(loader *Loader, opts ...lifecycle.Option) (*Manager, error) {
	if loader == nil {
		return nil, errors.InvalidArgument("config", "NewManager", "loader")
	}
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	all := append([]lifecycle.Option{lifecycle.WithName("config-manager")}, opts...)
	m := &Manager{
		Lifecycle: lifecycle.New(all...),
		loader:    loader,
		config:    NewSafeConfig(cfg),
		updates:   stream.NewController[Update](),
		modTimes:  layerModTimes(loader.Layers()),
	}
	if err := m.ManageStream(m.updates); err != nil {
		return nil, err
	}
	return m, nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *SafeConfig {
	return m.config
}

// OnChange calls fn for every change whose path matches pattern.
// Pattern examples:
//   - "caches.sessions" - exact match
//   - "caches.*" - every cache
//   - "caches.user-*" - caches starting with user-
//   - "*" - everything
func (m *Manager) OnChange(pattern string, fn func(Update)) (*stream.Subscription[Update], error) {
	if fn == nil {
		return nil, errors.InvalidArgument("config", "OnChange", "listener")
	}
	return lifecycle.ListenTo(m.Lifecycle, m.updates.Stream(), func(u Update) {
		if matchesPattern(u.Path, pattern) {
			fn(u)
		}
	})
}

// Reload loads the layers again and publishes the changed paths. An invalid
// configuration is rejected and the current one is kept.
func (m *Manager) Reload() ([]string, error) {
	if m.IsOrWillBeDisposed() {
		return nil, errors.InvalidState("config", "Reload", "reload disposed manager")
	}

	next, paths, err := m.swap()
	if err != nil || len(paths) == 0 {
		return nil, err
	}

	m.Logger().Info("config reloaded", "changed", paths)
	for _, p := range paths {
		if err := m.updates.Add(Update{Path: p, Config: next.Clone()}); err != nil {
			m.Logger().Debug("config update dropped", "path", p, "error", err)
		}
	}
	return paths, nil
}

// swap loads the next configuration and installs it when something changed.
func (m *Manager) swap() (*Config, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.loader.Load()
	if err != nil {
		m.Logger().Warn("config reload rejected", "error", err)
		return nil, nil, err
	}
	m.modTimes = layerModTimes(m.loader.Layers())

	paths := changedPaths(m.config.Get(), next)
	if len(paths) == 0 {
		return next, nil, nil
	}
	if err := m.config.Update(next); err != nil {
		return nil, nil, err
	}
	return next, paths, nil
}

// Watch polls the layer files every interval and reloads when one of them
// changed. Polling stops when the manager disposes.
func (m *Manager) Watch(interval time.Duration) error {
	_, err := m.NewManagedTicker(interval, func() {
		if !m.layersChanged() {
			return
		}
		if _, err := m.Reload(); err != nil && !errors.IsInvalidState(err) {
			m.Logger().Warn("config watch reload failed", "error", err)
		}
	})
	return err
}

func (m *Manager) layersChanged() bool {
	current := layerModTimes(m.loader.Layers())
	m.mu.Lock()
	defer m.mu.Unlock()
	return !reflect.DeepEqual(current, m.modTimes)
}

func layerModTimes(paths []string) map[string]time.Time {
	times := make(map[string]time.Time, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			times[p] = info.ModTime()
		}
	}
	return times
}

// changedPaths lists "version", "diagnostics" and "caches.<name>" for every
// part that differs between prev and next.
func changedPaths(prev, next *Config) []string {
	var paths []string
	if prev.Version != next.Version {
		paths = append(paths, "version")
	}
	if prev.Diagnostics != next.Diagnostics {
		paths = append(paths, "diagnostics")
	}

	names := make(map[string]struct{})
	for _, n := range prev.CacheNames() {
		names[n] = struct{}{}
	}
	for _, n := range next.CacheNames() {
		names[n] = struct{}{}
	}
	var changed []string
	for n := range names {
		a, inPrev := prev.Caches[n]
		b, inNext := next.Caches[n]
		if inPrev != inNext || a != b {
			changed = append(changed, "caches."+n)
		}
	}
	sort.Strings(changed)
	return append(paths, changed...)
}

// matchesPattern checks if a key matches a subscription pattern
func matchesPattern(key, pattern string) bool {
	if pattern == key || pattern == "*" {
		return true
	}

	// Wildcard suffix: "caches.*" matches "caches.sessions"
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, ".*")+".")
	}

	// Prefix wildcard: "caches.user-*" matches "caches.user-profiles"
	if prefix, _, ok := strings.Cut(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return false
}
