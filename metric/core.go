package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the lifecycle-level metrics shared by every disposable owner.
// Cache-specific metrics live with the cache and register through MetricsRegistry.
type Metrics struct {
	LifecyclesCreated  *prometheus.CounterVec
	LifecyclesDisposed *prometheus.CounterVec
	DisposeErrors      *prometheus.CounterVec
	LeaksFlagged       *prometheus.CounterVec
	DisposeDuration    *prometheus.HistogramVec
	ManagedChildren    *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all lifecycle metrics
func NewMetrics() *Metrics {
	return &Metrics{
		LifecyclesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semcache",
				Subsystem: "lifecycle",
				Name:      "created_total",
				Help:      "Total number of lifecycles created",
			},
			[]string{"name"},
		),

		LifecyclesDisposed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semcache",
				Subsystem: "lifecycle",
				Name:      "disposed_total",
				Help:      "Total number of lifecycles that finished disposal",
			},
			[]string{"name", "status"},
		),

		DisposeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semcache",
				Subsystem: "lifecycle",
				Name:      "dispose_errors_total",
				Help:      "Total number of failures raised while disposing children or running hooks",
			},
			[]string{"name", "stage"},
		),

		LeaksFlagged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semcache",
				Subsystem: "lifecycle",
				Name:      "leaks_flagged_total",
				Help:      "Total number of lifecycles collected without being disposed",
			},
			[]string{"name"},
		),

		DisposeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "semcache",
				Subsystem: "lifecycle",
				Name:      "dispose_duration_seconds",
				Help:      "Time from Dispose call to the Disposed state in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"name"},
		),

		ManagedChildren: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "semcache",
				Subsystem: "lifecycle",
				Name:      "managed_children",
				Help:      "Number of children currently managed, per lifecycle name",
			},
			[]string{"name"},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.LifecyclesCreated,
		c.LifecyclesDisposed,
		c.DisposeErrors,
		c.LeaksFlagged,
		c.DisposeDuration,
		c.ManagedChildren,
	}
}

// RecordCreated increments the created counter
func (c *Metrics) RecordCreated(name string) {
	c.LifecyclesCreated.WithLabelValues(name).Inc()
}

// RecordDisposed increments the disposed counter and observes the dispose duration
func (c *Metrics) RecordDisposed(name string, duration time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "failed"
	}
	c.LifecyclesDisposed.WithLabelValues(name, status).Inc()
	c.DisposeDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordDisposeError increments the dispose error counter for a stage
// ("will_dispose", "children" or "on_dispose").
func (c *Metrics) RecordDisposeError(name, stage string) {
	c.DisposeErrors.WithLabelValues(name, stage).Inc()
}

// RecordLeak increments the leak counter
func (c *Metrics) RecordLeak(name string) {
	c.LeaksFlagged.WithLabelValues(name).Inc()
}

// AddManagedChildren adjusts the managed children gauge by delta
func (c *Metrics) AddManagedChildren(name string, delta int) {
	c.ManagedChildren.WithLabelValues(name).Add(float64(delta))
}
