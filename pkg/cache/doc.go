// Package cache provides a keyed cache of asynchronously produced values with
// strategy-driven eviction, built-in statistics tracking and optional
// Prometheus metrics integration.
//
// # Overview
//
// A Cache maps ids to values produced by factories. The first Get or GetAsync
// for an id installs a slot before the factory runs; every later get for that
// id awaits the same slot until the entry is removed. Gets issued back-to-back
// for a new id therefore call the factory exactly once and observe the same
// value instance.
//
// Entries are never evicted by the cache itself. Callers Release entries they
// no longer need and the Strategy decides when a released entry is removed:
//   - ReferenceCountingStrategy: remove once every get has been released
//   - LeastRecentlyUsedStrategy: keep the N most recently released entries
//   - ExpiringStrategy: remove unreferenced entries after a grace period
//   - NoopStrategy: never remove on release
//
// Custom strategies implement the six hooks of Strategy.
//
// # Quick Start
//
//	sessions, err := cache.New[string, *Session](
//		cache.WithName[string, *Session]("sessions"),
//	)
//	if err != nil {
//		return err
//	}
//	defer sessions.Dispose()
//
//	s, err := sessions.Get(ctx, "alice", func() (*Session, error) {
//		return openSession("alice")
//	})
//	...
//	done, _ := sessions.Release("alice")
//	_ = done.Wait(ctx)
//
// GetAsync takes a factory returning a future and returns a future itself:
//
//	f, err := sessions.GetAsync("bob", func() *future.Future[*Session] {
//		return future.Go(func() (*Session, error) { return openSession("bob") })
//	})
//
// # Removal and in-flight work
//
// Remove deletes the slot synchronously, then waits for the value and for any
// ApplyToItem callback still running against the entry before emitting its
// events. A factory error never fails Release or Remove; removal only needs
// to know the work has finished.
//
//	ok, _ := sessions.ApplyToItem("alice", func(f *future.Future[*Session]) *future.Signal {
//		return future.GoSignal(func() error {
//			s, err := f.Await(ctx)
//			if err != nil {
//				return err
//			}
//			return s.Flush()
//		})
//	})
//
// # Events
//
// DidUpdate, DidRelease and DidRemove are synchronous event streams carrying
// Context values. A removal emits on DidRemove and then a Cleared update on
// DidUpdate. The streams close when the cache is disposed.
//
// # Disposal
//
// Cache embeds *lifecycle.Lifecycle. Dispose removes every remaining entry,
// waits for every in-flight get, release, remove and ApplyToItem callback and
// then closes the streams. After Dispose is called every mutating operation
// fails with errors.ErrInvalidState.
//
// # Configuration
//
//	cfg := cache.Config{Strategy: cache.StrategyLRU, Keep: 100, MetricsPrefix: "sessions"}
//	c, err := cache.NewFromConfig[string, *Session](cfg,
//		cache.WithMetricsRegistry[string, *Session](registry))
//
// Config accepts JSON and YAML; TTL accepts duration strings such as "30s".
//
// # Observability
//
// Statistics are always collected and available through Stats. WithMetrics
// exports hits, misses, releases, removals, factory errors and size to
// Prometheus under the semcache_cache namespace with a component label.
package cache
