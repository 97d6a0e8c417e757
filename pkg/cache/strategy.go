package cache

// RemoveFunc removes id from the cache that invoked the strategy and blocks
// until the removal has finished. It does nothing when id is no longer
// released, because a get since the release has taken it back. Use
// Cache.Remove to evict a live entry.
type RemoveFunc[K comparable] func(id K) error

// Strategy decides when cached entries are removed. The cache consults it at
// six points.
//
// OnWill* hooks run while the cache holds its lock, in the order the cache
// operations were issued. They must not call back into the cache.
//
// OnDid* hooks run after the entry's value has settled, in the goroutine that
// finishes the operation. They may run concurrently with each other and must
// synchronize their own state. OnDidGet only runs when the value resolved
// successfully; OnDidRelease and OnDidRemove receive the zero value when the
// factory failed.
type Strategy[K comparable, V any] interface {
	OnWillGet(id K)
	OnDidGet(id K, value V)
	OnWillRelease(id K)
	OnDidRelease(id K, value V, remove RemoveFunc[K])
	OnWillRemove(id K)
	OnDidRemove(id K, value V)
}

// NoopStrategy keeps every entry until it is removed explicitly. Embed it to
// implement only the hooks a custom strategy needs.
type NoopStrategy[K comparable, V any] struct{}

// OnWillGet does nothing.
func (NoopStrategy[K, V]) OnWillGet(K) {}

// OnDidGet does nothing.
func (NoopStrategy[K, V]) OnDidGet(K, V) {}

// OnWillRelease does nothing.
func (NoopStrategy[K, V]) OnWillRelease(K) {}

// OnDidRelease does nothing.
func (NoopStrategy[K, V]) OnDidRelease(K, V, RemoveFunc[K]) {}

// OnWillRemove does nothing.
func (NoopStrategy[K, V]) OnWillRemove(K) {}

// OnDidRemove does nothing.
func (NoopStrategy[K, V]) OnDidRemove(K, V) {}
