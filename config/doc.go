// Package config loads and manages semcache application configuration.
//
// A configuration names the caches an application builds and the diagnostics
// their lifecycles use. It is read from JSON or YAML files, layered, and
// overridden by environment variables.
//
// # Core Components
//
// Config: The configuration document. Version is an optional semantic
// version, Diagnostics controls logging, leak flagging and lifecycle metrics,
// and Caches maps cache names to cache.Config.
//
// SafeConfig: Thread-safe wrapper using RWMutex and deep cloning to prevent
// concurrent access issues and accidental mutations.
//
// Loader: Loads configuration with layer merging (base + overrides) and
// SEMCACHE_* environment overrides.
//
// Manager: Holds the current configuration, reloads it on demand or by
// polling the layer files, and notifies subscribers about changed paths.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.json") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sessions, err := config.NewCache[string, *Session](cfg, "sessions", registry, logger)
//
// A YAML layer looks like:
//
//	version: 1.0.0
//	diagnostics:
//	  log_level: debug
//	  flag_leaks: true
//	  metrics: true
//	caches:
//	  sessions:
//	    strategy: expiring
//	    ttl: 5m
//	  documents:
//	    strategy: lru
//	    keep: 128
//
// # Reloading
//
//	manager, err := config.NewManager(loader)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer manager.Dispose()
//
//	manager.OnChange("caches.*", func(u config.Update) {
//		log.Printf("%s changed", u.Path)
//	})
//	_ = manager.Watch(10 * time.Second)
//
// # Environment Overrides
//
// SEMCACHE_VERSION, SEMCACHE_LOG_LEVEL, SEMCACHE_LOG_FORMAT,
// SEMCACHE_FLAG_LEAKS and SEMCACHE_METRICS override the loaded values.
//
// # Security
//
// Config files must be regular .json, .yaml or .yml files of at most 1MB.
// Relative paths may not escape the working directory and JSON nesting is
// bounded before decoding.
package config
