// Package health reports the health of caches and aggregates it per process.
package health

import (
	"fmt"
	"time"

	"github.com/c360/semcache/pkg/cache"
	"github.com/c360/semcache/pkg/lifecycle"
)

// DefaultDegradedRatio is the factory error ratio above which a cache is degraded.
const DefaultDegradedRatio = 0.25

// Status represents the health state of a cache or of the whole process
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"` // true if status is "healthy"
	Status      string    `json:"status"`  // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains the cache figures a status was derived from
type Metrics struct {
	Uptime        time.Duration `json:"uptime"`
	Entries       int64         `json:"entries"`
	Misses        int64         `json:"misses"`
	FactoryErrors int64         `json:"factory_errors"`
	HitRatio      float64       `json:"hit_ratio"`
}

// Source is what a cache exposes for health checks. *cache.Cache satisfies it.
type Source interface {
	State() lifecycle.State
	Stats() *cache.Statistics
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, subStatus)
	return s
}

// FromCache derives a status from a cache's lifecycle state and statistics.
// A cache that is disposing or disposed is unhealthy. A live cache whose
// factory errors exceed degradedRatio of its misses is degraded.
func FromCache(name string, src Source, degradedRatio float64) Status {
	stats := src.Stats()
	metrics := &Metrics{
		Uptime:        stats.Uptime(),
		Entries:       stats.CurrentSize(),
		Misses:        stats.Misses(),
		FactoryErrors: stats.FactoryErrors(),
		HitRatio:      stats.HitRatio(),
	}

	var status Status
	switch state := src.State(); {
	case state != lifecycle.Initialized:
		status = NewUnhealthy(name, "cache is "+state.String())
	case metrics.Misses > 0 && float64(metrics.FactoryErrors)/float64(metrics.Misses) > degradedRatio:
		status = NewDegraded(name, fmt.Sprintf("%d of %d loads failed", metrics.FactoryErrors, metrics.Misses))
	default:
		status = NewHealthy(name, "cache serving")
	}
	return status.WithMetrics(metrics)
}
