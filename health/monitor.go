package health

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/lifecycle"
)

// Monitor tracks health of multiple caches in a thread-safe manner
type Monitor struct {
	mu            sync.RWMutex
	statuses      map[string]Status
	sources       map[string]Source
	degradedRatio float64
}

// NewMonitor creates a new health monitor. A non-positive degradedRatio
// selects DefaultDegradedRatio.
func NewMonitor(degradedRatio float64) *Monitor {
	if degradedRatio <= 0 {
		degradedRatio = DefaultDegradedRatio
	}
	return &Monitor{
		statuses:      make(map[string]Status),
		sources:       make(map[string]Source),
		degradedRatio: degradedRatio,
	}
}

// Track registers a cache under name and records its current status.
func (m *Monitor) Track(name string, src Source) error {
	if name == "" {
		return errors.InvalidArgument("health", "Track", "name")
	}
	if src == nil {
		return errors.InvalidArgument("health", "Track", "source")
	}
	m.mu.Lock()
	m.sources[name] = src
	m.mu.Unlock()

	m.Update(name, FromCache(name, src, m.degradedRatio))
	return nil
}

// Check refreshes the status of every tracked cache.
func (m *Monitor) Check() {
	m.mu.RLock()
	sources := maps.Clone(m.sources)
	m.mu.RUnlock()

	for name, src := range sources {
		m.Update(name, FromCache(name, src, m.degradedRatio))
	}
}

// Watch runs Check every interval until l is disposed.
func (m *Monitor) Watch(l *lifecycle.Lifecycle, interval time.Duration) error {
	if interval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "health", "Watch", "interval must be positive")
	}
	_, err := l.NewManagedTicker(interval, m.Check)
	return err
}

// Update updates the health status for a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// GetAll returns a copy of all current health statuses
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.statuses)
}

// Remove stops tracking a component
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
	delete(m.sources, name)
}

// AggregateHealth returns an aggregated health status, sub-statuses sorted by name
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := slices.Sorted(maps.Keys(m.statuses))
	subStatuses := make([]Status, 0, len(names))
	for _, name := range names {
		subStatuses = append(subStatuses, m.statuses[name])
	}
	return Aggregate(systemName, subStatuses)
}

// ListComponents returns the sorted names of all tracked components
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.statuses))
}

// Count returns the number of components being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.statuses)
}
