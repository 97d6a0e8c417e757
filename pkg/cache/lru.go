package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/c360/semcache/errors"
)

// LeastRecentlyUsedStrategy keeps the keep most recently released entries and
// removes older released entries. Recency is the order of releases; a new get
// takes the id out of the removal queue.
type LeastRecentlyUsedStrategy[K comparable, V any] struct {
	keep int

	mu    sync.Mutex
	queue *list.List          // front = most recently released
	items map[K]*list.Element // id -> queue element
}

// NewLeastRecentlyUsedStrategy creates an LRU strategy. keep must not be negative.
func NewLeastRecentlyUsedStrategy[K comparable, V any](keep int) (*LeastRecentlyUsedStrategy[K, V], error) {
	if keep < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "cache", "NewLeastRecentlyUsedStrategy",
			fmt.Sprintf("keep must not be negative, got %d", keep))
	}
	return &LeastRecentlyUsedStrategy[K, V]{
		keep:  keep,
		queue: list.New(),
		items: make(map[K]*list.Element),
	}, nil
}

// Keep returns how many released entries are retained.
func (s *LeastRecentlyUsedStrategy[K, V]) Keep() int {
	return s.keep
}

// Pending returns the released ids awaiting removal, most recent first.
func (s *LeastRecentlyUsedStrategy[K, V]) Pending() []K {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]K, 0, s.queue.Len())
	for e := s.queue.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(K))
	}
	return ids
}

func (s *LeastRecentlyUsedStrategy[K, V]) dequeue(id K) {
	s.mu.Lock()
	if e, ok := s.items[id]; ok {
		s.queue.Remove(e)
		delete(s.items, id)
	}
	s.mu.Unlock()
}

// OnWillGet cancels a scheduled removal of id.
func (s *LeastRecentlyUsedStrategy[K, V]) OnWillGet(id K) {
	s.dequeue(id)
}

// OnDidGet does nothing.
func (s *LeastRecentlyUsedStrategy[K, V]) OnDidGet(K, V) {}

// OnWillRelease puts id at the front of the queue unless it is already queued.
func (s *LeastRecentlyUsedStrategy[K, V]) OnWillRelease(id K) {
	s.mu.Lock()
	if _, ok := s.items[id]; !ok {
		s.items[id] = s.queue.PushFront(id)
	}
	s.mu.Unlock()
}

// OnDidRelease removes the least recently released ids while more than keep are queued.
func (s *LeastRecentlyUsedStrategy[K, V]) OnDidRelease(_ K, _ V, remove RemoveFunc[K]) {
	s.mu.Lock()
	var evict []K
	for s.queue.Len() > s.keep {
		back := s.queue.Back()
		id := back.Value.(K)
		s.queue.Remove(back)
		delete(s.items, id)
		evict = append(evict, id)
	}
	s.mu.Unlock()

	for _, id := range evict {
		_ = remove(id)
	}
}

// OnWillRemove drops id from the queue.
func (s *LeastRecentlyUsedStrategy[K, V]) OnWillRemove(id K) {
	s.dequeue(id)
}

// OnDidRemove does nothing.
func (s *LeastRecentlyUsedStrategy[K, V]) OnDidRemove(K, V) {}
