// Package semcache provides disposable resource trees and keyed caches whose
// entries are removed by pluggable strategies.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          cmd/semcache               │  Config layers, workload,
//	│  (load, build, drive, report)       │  health summary
//	└─────────────────────────────────────┘
//	           ↓ builds from config
//	┌─────────────────────────────────────┐
//	│     pkg/cache  +  strategies        │  get/release/remove,
//	│  (refcount, lru, expiring, manual)  │  events, stats, metrics
//	└─────────────────────────────────────┘
//	           ↓ is a
//	┌─────────────────────────────────────┐
//	│          pkg/lifecycle              │  Dispose, managed children,
//	│   (disposal tree, hooks, timers)    │  await-before-dispose
//	└─────────────────────────────────────┘
//	           ↓ built on
//	┌─────────────────────────────────────┐
//	│     pkg/future  +  pkg/stream       │  One-shot results,
//	│   (futures, signals, broadcasts)    │  event subscriptions
//	└─────────────────────────────────────┘
//
// # Packages
//
// Core:
//   - pkg/future: Futures, completers and signals
//   - pkg/stream: Synchronous broadcast streams with cancelable subscriptions
//   - pkg/lifecycle: Disposal state machine and resource tree
//   - pkg/cache: Keyed cache with coalesced factories and removal strategies
//
// Infrastructure:
//   - errors: Classified errors and the invalid-argument, invalid-state,
//     object-disposed and factory-error sentinels
//   - metric: Prometheus registry and lifecycle metrics
//   - config: Layered YAML/JSON configuration, file watching, cache construction
//   - health: Cache health statuses and aggregation
//   - pkg/retry: Retrying factories with exponential backoff
//
// # Usage
//
//	root := lifecycle.New(lifecycle.WithName("app"))
//	defer root.Dispose()
//
//	docs, _ := cache.New[string, *Document](
//	    cache.WithStrategy(cache.NewReferenceCountingStrategy[string, *Document]()),
//	)
//	_ = root.Manage(docs)
//
//	doc, err := docs.Get(ctx, "readme", func() (*Document, error) {
//	    return load("readme")
//	})
//	...
//	_, _ = docs.Release("readme")
//
// # Binary
//
//	# Run a workload against the caches in a config file
//	./bin/semcache -config configs/example.yaml -duration 30s
//
//	# Validate configuration only
//	./bin/semcache -config configs/example.yaml -validate
package semcache
