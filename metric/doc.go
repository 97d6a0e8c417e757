// Package metric provides Prometheus-based metrics collection for semcache
// lifecycles and caches.
//
// The package offers a registry managing both the core lifecycle metrics
// (created, disposed, dispose errors, leaks flagged, dispose duration and
// managed children) and component-specific metrics such as per-cache hit and
// miss counters. Exposition is left to the host application, which can hand
// PrometheusRegistry to its own HTTP handler.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	core := registry.CoreMetrics()
//	core.RecordCreated("sessions")
//
// Components register their own collectors under an owner name:
//
//	hits := prometheus.NewCounter(prometheus.CounterOpts{Name: "cache_hits_total", Help: "hits"})
//	if err := registry.RegisterCounter("sessions", "cache_hits", hits); err != nil {
//	    return err
//	}
//
// Registering the same owner and metric name twice returns an invalid-class
// error from the errors package. UnregisterOwner removes all metrics of a
// disposed component so its name can be reused.
package metric
