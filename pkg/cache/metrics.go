package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semcache/metric"
)

// cacheMetrics holds Prometheus metrics for cache operations.
type cacheMetrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	releases      prometheus.Counter
	removals      prometheus.Counter
	factoryErrors prometheus.Counter
	size          prometheus.Gauge
}

func cacheCounter(prefix, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "semcache",
		Subsystem:   "cache",
		Name:        name,
		ConstLabels: prometheus.Labels{"component": prefix},
		Help:        help,
	})
}

// newCacheMetrics creates and registers cache metrics with the provided registry.
func newCacheMetrics(registry *metric.MetricsRegistry, prefix string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		hits:          cacheCounter(prefix, "hits_total", "Total number of gets served by an existing slot"),
		misses:        cacheCounter(prefix, "misses_total", "Total number of gets that invoked a factory"),
		releases:      cacheCounter(prefix, "releases_total", "Total number of releases"),
		removals:      cacheCounter(prefix, "removals_total", "Total number of removals"),
		factoryErrors: cacheCounter(prefix, "factory_errors_total", "Total number of failed factories"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "semcache",
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current number of slots in cache",
		}),
	}

	counters := []struct {
		name string
		c    prometheus.Counter
	}{
		{"cache_hits", m.hits},
		{"cache_misses", m.misses},
		{"cache_releases", m.releases},
		{"cache_removals", m.removals},
		{"cache_factory_errors", m.factoryErrors},
	}
	var registered []string
	rollback := func() {
		for _, name := range registered {
			registry.Unregister(prefix, name)
		}
	}
	for _, c := range counters {
		if err := registry.RegisterCounter(prefix, c.name, c.c); err != nil {
			rollback()
			return nil, err
		}
		registered = append(registered, c.name)
	}
	if err := registry.RegisterGauge(prefix, "cache_size", m.size); err != nil {
		rollback()
		return nil, err
	}

	return m, nil
}

// unregister removes the cache metrics so the prefix can be reused.
func (m *cacheMetrics) unregister(registry *metric.MetricsRegistry, prefix string) {
	for _, name := range []string{
		"cache_hits", "cache_misses", "cache_releases",
		"cache_removals", "cache_factory_errors", "cache_size",
	} {
		registry.Unregister(prefix, name)
	}
}

func (m *cacheMetrics) recordHit() {
	m.hits.Inc()
}

func (m *cacheMetrics) recordMiss() {
	m.misses.Inc()
}

func (m *cacheMetrics) recordRelease() {
	m.releases.Inc()
}

func (m *cacheMetrics) recordRemoval() {
	m.removals.Inc()
}

func (m *cacheMetrics) recordFactoryError() {
	m.factoryErrors.Inc()
}

func (m *cacheMetrics) updateSize(size int) {
	m.size.Set(float64(size))
}
