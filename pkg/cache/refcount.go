package cache

import "sync"

// ReferenceCountingStrategy removes an entry once every get has been matched
// by a release. The count is checked after the released value has settled,
// so a release racing with a get for the same id keeps the entry.
type ReferenceCountingStrategy[K comparable, V any] struct {
	mu     sync.Mutex
	counts map[K]int
}

// NewReferenceCountingStrategy creates a reference counting strategy.
func NewReferenceCountingStrategy[K comparable, V any]() *ReferenceCountingStrategy[K, V] {
	return &ReferenceCountingStrategy[K, V]{counts: make(map[K]int)}
}

// Count returns the current reference count for id.
func (s *ReferenceCountingStrategy[K, V]) Count(id K) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[id]
}

// OnWillGet increments the count.
func (s *ReferenceCountingStrategy[K, V]) OnWillGet(id K) {
	s.mu.Lock()
	s.counts[id]++
	s.mu.Unlock()
}

// OnDidGet does nothing.
func (s *ReferenceCountingStrategy[K, V]) OnDidGet(K, V) {}

// OnWillRelease decrements the count, never below zero.
func (s *ReferenceCountingStrategy[K, V]) OnWillRelease(id K) {
	s.mu.Lock()
	if s.counts[id] > 0 {
		s.counts[id]--
	}
	s.mu.Unlock()
}

// OnDidRelease removes id when its count is zero.
func (s *ReferenceCountingStrategy[K, V]) OnDidRelease(id K, _ V, remove RemoveFunc[K]) {
	s.mu.Lock()
	unused := s.counts[id] == 0
	s.mu.Unlock()

	if unused {
		_ = remove(id)
	}
}

// OnWillRemove does nothing.
func (s *ReferenceCountingStrategy[K, V]) OnWillRemove(K) {}

// OnDidRemove forgets the count.
func (s *ReferenceCountingStrategy[K, V]) OnDidRemove(id K, _ V) {
	s.mu.Lock()
	delete(s.counts, id)
	s.mu.Unlock()
}
