// Package cache provides a keyed cache of asynchronously produced values whose
// eviction is decided by a pluggable Strategy.
package cache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/metric"
	"github.com/c360/semcache/pkg/future"
	"github.com/c360/semcache/pkg/lifecycle"
	"github.com/c360/semcache/pkg/stream"
)

// Context describes a cache event. For removals and cleared updates Value is
// the value the entry held; otherwise it is the new value.
type Context[K comparable, V any] struct {
	ID      K
	Value   V
	Cleared bool
}

// slot holds one entry's value, pending or settled, and the ApplyToItem
// callbacks still running against it. settled resolves once the value is
// complete and its update event has been delivered.
type slot[V any] struct {
	value   *future.Completer[V]
	settled *future.Completer[struct{}]
	applies map[*future.Signal]struct{}
}

// outcome waits for the slot to settle and returns its value, or the zero
// value when the factory failed.
func (s *slot[V]) outcome() V {
	_ = s.settled.Future().Wait(context.Background())
	v, _, _ := s.value.Future().Result()
	return v
}

// Cache maps ids to values produced by factories. The first get for an id
// installs a slot before its factory runs, so every get issued before the slot
// is removed shares the factory's single result.
//
// Cache embeds *lifecycle.Lifecycle. Disposing it removes every remaining
// entry, waits for in-flight operations and closes the event streams; every
// mutating operation fails with errors.ErrInvalidState once Dispose has been
// called.
type Cache[K comparable, V any] struct {
	*lifecycle.Lifecycle

	strategy      Strategy[K, V]
	stats         *Statistics
	metrics       *cacheMetrics
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
	logger        *slog.Logger

	mu       sync.Mutex
	slots    map[K]*slot[V]
	released map[K]bool

	updates  *stream.Controller[Context[K, V]]
	releases *stream.Controller[Context[K, V]]
	removals *stream.Controller[Context[K, V]]
}

// New creates a cache. Stats are always enabled; use WithMetrics to also
// export them to Prometheus.
func New[K comparable, V any](options ...Option[K, V]) (*Cache[K, V], error) {
	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "New", "metrics registration")
		}
	}

	c := &Cache[K, V]{
		strategy:      opts.strategy,
		stats:         NewStatistics(),
		metrics:       metrics,
		metricsReg:    opts.metricsReg,
		metricsPrefix: opts.metricsPrefix,
		slots:         make(map[K]*slot[V]),
		released:      make(map[K]bool),
		updates:       stream.NewController[Context[K, V]](),
		releases:      stream.NewController[Context[K, V]](),
		removals:      stream.NewController[Context[K, V]](),
	}
	c.Lifecycle = lifecycle.New(
		lifecycle.WithName(opts.name),
		lifecycle.WithDiagnostics(opts.diag),
		lifecycle.WithWillDispose(c.removeAll),
		lifecycle.WithOnDispose(c.unregisterMetrics),
	)
	c.logger = c.Logger()

	for _, s := range []*stream.Controller[Context[K, V]]{c.updates, c.releases, c.removals} {
		if err := c.ManageStream(s); err != nil {
			return nil, err
		}
	}
	if d, ok := opts.strategy.(lifecycle.Disposable); ok {
		if err := c.Manage(d); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// checkLive fails once disposal has been requested. Caller holds c.mu.
func (c *Cache[K, V]) checkLive(method string) error {
	if c.IsOrWillBeDisposed() {
		return errors.InvalidState("cache", method, "use disposed cache")
	}
	return nil
}

// acquire runs the synchronous part of a get: strategy notification,
// un-releasing the id and installing a slot when none exists.
func (c *Cache[K, V]) acquire(id K, method string) (*slot[V], bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(method); err != nil {
		return nil, false, err
	}

	c.strategy.OnWillGet(id)
	c.released[id] = false

	if s, ok := c.slots[id]; ok {
		c.stats.Hit()
		if c.metrics != nil {
			c.metrics.recordHit()
		}
		return s, false, nil
	}

	s := &slot[V]{
		value:   future.NewCompleter[V](),
		settled: future.NewSignalCompleter(),
		applies: make(map[*future.Signal]struct{}),
	}
	c.slots[id] = s
	c.stats.Miss()
	c.updateSize()
	if c.metrics != nil {
		c.metrics.recordMiss()
	}
	return s, true, nil
}

// settle resolves a freshly installed slot with the factory outcome. The value
// completes before update listeners run, so a listener may get the same id.
func (c *Cache[K, V]) settle(id K, s *slot[V], v V, err error) {
	defer future.Resolve(s.settled)
	if err != nil {
		c.stats.FactoryError()
		if c.metrics != nil {
			c.metrics.recordFactoryError()
		}
		c.logger.Debug("cache factory failed", "id", id, "error", err)
		s.value.CompleteError(errors.FactoryFailed(err, "cache"))
		return
	}
	s.value.Complete(v)
	c.emit(c.updates, Context[K, V]{ID: id, Value: v})
}

// Get returns the value for id, calling factory in the caller's goroutine if
// no slot exists. Concurrent gets for the same id share one factory call. A
// factory error or panic fails the slot; the slot stays installed until it is
// removed, so later gets observe the same error.
func (c *Cache[K, V]) Get(ctx context.Context, id K, factory func() (V, error)) (V, error) {
	var zero V
	if factory == nil {
		return zero, errors.InvalidArgument("cache", "Get", "factory")
	}

	s, installed, err := c.acquire(id, "Get")
	if err != nil {
		return zero, err
	}
	if installed {
		_ = c.AwaitBeforeDispose(s.value.Future())
		v, ferr := future.Call(factory)
		c.settle(id, s, v, ferr)
	}

	v, err := s.value.Future().Await(ctx)
	if err != nil {
		return zero, err
	}
	c.strategy.OnDidGet(id, v)
	return v, nil
}

// GetAsync is the non-blocking form of Get. factory is called synchronously
// when a slot is installed and must return a future for the value.
func (c *Cache[K, V]) GetAsync(id K, factory func() *future.Future[V]) (*future.Future[V], error) {
	if factory == nil {
		return nil, errors.InvalidArgument("cache", "GetAsync", "factory")
	}

	s, installed, err := c.acquire(id, "GetAsync")
	if err != nil {
		return nil, err
	}
	if installed {
		_ = c.AwaitBeforeDispose(s.value.Future())
		produced, ferr := future.Call(func() (*future.Future[V], error) {
			f := factory()
			if f == nil {
				return nil, errors.InvalidArgument("cache", "GetAsync", "factory future")
			}
			return f, nil
		})
		if ferr != nil {
			var zero V
			c.settle(id, s, zero, ferr)
		} else {
			go func() {
				v, err := produced.Await(context.Background())
				c.settle(id, s, v, err)
			}()
		}
	}

	result := future.Go(func() (V, error) {
		v, err := s.value.Future().Await(context.Background())
		if err != nil {
			return v, err
		}
		c.strategy.OnDidGet(id, v)
		return v, nil
	})
	_ = c.AwaitBeforeDispose(result)
	return result, nil
}

// Release marks id eligible for removal and lets the strategy decide whether
// to remove it once the value has settled. Releasing an unknown id is a no-op.
// A failed factory does not fail the release.
func (c *Cache[K, V]) Release(id K) (*future.Signal, error) {
	c.mu.Lock()
	if err := c.checkLive("Release"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	s, ok := c.slots[id]
	if !ok {
		c.mu.Unlock()
		return future.ResolvedSignal(), nil
	}
	c.released[id] = true
	c.strategy.OnWillRelease(id)
	c.mu.Unlock()

	c.stats.Release()
	if c.metrics != nil {
		c.metrics.recordRelease()
	}

	done := future.GoSignal(func() error {
		v := s.outcome()
		c.strategy.OnDidRelease(id, v, c.removeAndWait)
		c.emit(c.releases, Context[K, V]{ID: id, Value: v})
		return nil
	})
	_ = c.AwaitBeforeDispose(done)
	return done, nil
}

// Remove deletes the slot for id, waits for its value and for ApplyToItem
// callbacks still running against it, then emits a remove event and a cleared
// update event. Removing an unknown id is a no-op. A failed factory does not
// fail the removal.
func (c *Cache[K, V]) Remove(id K) (*future.Signal, error) {
	c.mu.Lock()
	if err := c.checkLive("Remove"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	done := c.removeLocked(id)
	c.mu.Unlock()

	if done == nil {
		return future.ResolvedSignal(), nil
	}
	_ = c.AwaitBeforeDispose(done)
	return done, nil
}

// removeAndWait is the RemoveFunc handed to strategies. It does not check the
// lifecycle state so strategy decisions still apply while draining. An id that
// was got again after its release stays cached.
func (c *Cache[K, V]) removeAndWait(id K) error {
	c.mu.Lock()
	if !c.released[id] {
		c.mu.Unlock()
		return nil
	}
	done := c.removeLocked(id)
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	_ = c.AwaitBeforeDispose(done)
	return done.Wait(context.Background())
}

// removeLocked deletes the slot and starts the removal. Caller holds c.mu.
// Returns nil if id has no slot.
func (c *Cache[K, V]) removeLocked(id K) *future.Signal {
	s, ok := c.slots[id]
	if !ok {
		return nil
	}
	c.strategy.OnWillRemove(id)
	delete(c.slots, id)
	delete(c.released, id)

	applies := make([]future.Awaitable, 0, len(s.applies))
	for a := range s.applies {
		applies = append(applies, a)
	}

	c.stats.Removal()
	c.updateSize()
	if c.metrics != nil {
		c.metrics.recordRemoval()
	}

	return future.GoSignal(func() error {
		v := s.outcome()
		_ = future.WaitAll(context.Background(), applies...)
		c.strategy.OnDidRemove(id, v)
		c.emit(c.removals, Context[K, V]{ID: id, Value: v})
		c.emit(c.updates, Context[K, V]{ID: id, Value: v, Cleared: true})
		return nil
	})
}

// ApplyToItem calls fn with the value future of a live entry and tracks the
// signal fn returns; Remove waits for it before completing. It returns false
// without calling fn when id has no slot or has been released.
func (c *Cache[K, V]) ApplyToItem(id K, fn func(*future.Future[V]) *future.Signal) (bool, error) {
	if fn == nil {
		return false, errors.InvalidArgument("cache", "ApplyToItem", "callback")
	}

	c.mu.Lock()
	if err := c.checkLive("ApplyToItem"); err != nil {
		c.mu.Unlock()
		return false, err
	}
	s, ok := c.slots[id]
	if !ok || c.released[id] {
		c.mu.Unlock()
		return false, nil
	}
	tracker := future.NewSignalCompleter()
	tracked := tracker.Future()
	s.applies[tracked] = struct{}{}
	c.mu.Unlock()

	tracked.OnComplete(func() {
		c.mu.Lock()
		delete(s.applies, tracked)
		c.mu.Unlock()
	})

	sig, err := future.Call(func() (*future.Signal, error) {
		return fn(s.value.Future()), nil
	})
	switch {
	case err != nil:
		tracker.CompleteError(err)
		return true, errors.Wrap(err, "cache", "ApplyToItem", "callback")
	case sig == nil:
		future.Resolve(tracker)
	default:
		future.Forward(sig, tracker)
		_ = c.AwaitBeforeDispose(tracked)
	}
	return true, nil
}

// Contains reports whether id has a slot.
func (c *Cache[K, V]) Contains(id K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.slots[id]
	return ok
}

// Keys returns every id with a slot, in no particular order.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.slots))
	for id := range c.slots {
		keys = append(keys, id)
	}
	return keys
}

// LiveKeys returns the ids that are cached and not released.
func (c *Cache[K, V]) LiveKeys() []K {
	return c.keysWhere(false)
}

// ReleasedKeys returns the ids that are released but not yet removed.
func (c *Cache[K, V]) ReleasedKeys() []K {
	return c.keysWhere(true)
}

func (c *Cache[K, V]) keysWhere(released bool) []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []K
	for id, r := range c.released {
		if r == released {
			keys = append(keys, id)
		}
	}
	return keys
}

// LiveValues waits for every live entry and returns the values that resolved
// successfully.
func (c *Cache[K, V]) LiveValues(ctx context.Context) (map[K]V, error) {
	c.mu.Lock()
	live := make(map[K]*future.Future[V])
	for id, r := range c.released {
		if s, ok := c.slots[id]; ok && !r {
			live[id] = s.value.Future()
		}
	}
	c.mu.Unlock()

	values := make(map[K]V, len(live))
	for id, f := range live {
		v, err := f.Await(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil {
			values[id] = v
		}
	}
	return values, nil
}

// Len returns the number of slots, pending or settled.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Stats returns the cache statistics.
func (c *Cache[K, V]) Stats() *Statistics {
	return c.stats
}

// Strategy returns the strategy the cache consults.
func (c *Cache[K, V]) Strategy() Strategy[K, V] {
	return c.strategy
}

// DidUpdate emits when a value is inserted, or cleared by a removal.
func (c *Cache[K, V]) DidUpdate() stream.Stream[Context[K, V]] {
	return c.updates.Stream()
}

// DidRelease emits after a release has been handled by the strategy.
func (c *Cache[K, V]) DidRelease() stream.Stream[Context[K, V]] {
	return c.releases.Stream()
}

// DidRemove emits after an entry has been removed.
func (c *Cache[K, V]) DidRemove() stream.Stream[Context[K, V]] {
	return c.removals.Stream()
}

func (c *Cache[K, V]) emit(ctrl *stream.Controller[Context[K, V]], ev Context[K, V]) {
	if err := ctrl.Add(ev); err != nil {
		c.logger.Debug("cache event dropped", "id", ev.ID, "error", err)
	}
}

// updateSize refreshes size stats. Caller holds c.mu.
func (c *Cache[K, V]) updateSize() {
	c.stats.UpdateSize(int64(len(c.slots)))
	if c.metrics != nil {
		c.metrics.updateSize(len(c.slots))
	}
}

// removeAll is the will-dispose hook: every remaining slot is removed through
// the strategy and the removals are awaited before the streams close.
func (c *Cache[K, V]) removeAll() error {
	c.mu.Lock()
	pending := make([]*future.Signal, 0, len(c.slots))
	for id := range c.slots {
		if done := c.removeLocked(id); done != nil {
			pending = append(pending, done)
		}
	}
	c.mu.Unlock()

	for _, done := range pending {
		if err := c.AwaitBeforeDispose(done); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		c.logger.Debug("removing cache entries for dispose", "count", len(pending))
	}
	return nil
}

func (c *Cache[K, V]) unregisterMetrics() error {
	if c.metrics != nil {
		c.metrics.unregister(c.metricsReg, c.metricsPrefix)
	}
	return nil
}
