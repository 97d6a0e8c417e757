// Package health derives health statuses from caches and aggregates them.
//
// A cache is healthy while it is live and its value factories mostly
// succeed. It is degraded when the share of failed loads among its misses
// exceeds the monitor's ratio, and unhealthy once disposal was requested.
//
//	monitor := health.NewMonitor(0)
//	_ = monitor.Track("documents", documents)
//	_ = monitor.Watch(root, 5*time.Second)
//
//	if status := monitor.AggregateHealth("semcache"); !status.IsHealthy() {
//	    logger.Warn("cache health", "status", status.Status, "message", status.Message)
//	}
//
// Aggregation is worst-wins: any unhealthy sub-status makes the aggregate
// unhealthy, otherwise any degraded one makes it degraded.
package health
