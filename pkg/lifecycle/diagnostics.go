package lifecycle

import (
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/c360/semcache/metric"
)

// Diagnostics configures logging, leak flagging and metrics for a lifecycle.
// Child lifecycles created through NewChild inherit it.
type Diagnostics struct {
	// Logger receives lifecycle events. Nil means slog.Default().
	Logger *slog.Logger

	// FlagLeaks reports lifecycles that are garbage collected without being disposed.
	FlagLeaks bool

	// Metrics records lifecycle counters when non-nil.
	Metrics *metric.Metrics
}

func (d Diagnostics) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// leakTracker is attached to a lifecycle through runtime.AddCleanup. It must
// never reference the lifecycle itself.
type leakTracker struct {
	id       string
	name     string
	logger   *slog.Logger
	metrics  *metric.Metrics
	disposed atomic.Bool
}

func flagLeak(t *leakTracker) {
	if t.disposed.Load() {
		return
	}
	t.logger.Warn("lifecycle collected without being disposed",
		"lifecycle_id", t.id, "name", t.name)
	if t.metrics != nil {
		t.metrics.RecordLeak(t.name)
	}
}

func (l *Lifecycle) trackLeaks() {
	t := &leakTracker{
		id:      l.id.String(),
		name:    l.name,
		logger:  l.logger,
		metrics: l.diag.Metrics,
	}
	l.leaks = t
	runtime.AddCleanup(l, flagLeak, t)
}
