package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/lifecycle"
)

// ExpiringStrategy counts references like ReferenceCountingStrategy but keeps
// an unreferenced entry for a grace period before removing it. A get during
// the grace period cancels the removal.
//
// Grace timers are owned by the strategy's lifecycle. A cache manages the
// strategy, so disposing the cache stops pending timers.
type ExpiringStrategy[K comparable, V any] struct {
	*lifecycle.Lifecycle
	ttl time.Duration

	mu       sync.Mutex
	counts   map[K]int
	expiries map[K]*expiry
}

type expiry struct {
	timer *lifecycle.Timer
}

// NewExpiringStrategy creates an expiring strategy. ttl must be positive.
func NewExpiringStrategy[K comparable, V any](ttl time.Duration, opts ...lifecycle.Option) (*ExpiringStrategy[K, V], error) {
	if ttl <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "cache", "NewExpiringStrategy",
			fmt.Sprintf("ttl must be positive, got %v", ttl))
	}
	all := append([]lifecycle.Option{lifecycle.WithName("expiring-strategy")}, opts...)
	return &ExpiringStrategy[K, V]{
		Lifecycle: lifecycle.New(all...),
		ttl:       ttl,
		counts:    make(map[K]int),
		expiries:  make(map[K]*expiry),
	}, nil
}

// TTL returns the grace period.
func (s *ExpiringStrategy[K, V]) TTL() time.Duration {
	return s.ttl
}

// Scheduled reports whether a removal is pending for id.
func (s *ExpiringStrategy[K, V]) Scheduled(id K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.expiries[id]
	return ok
}

// cancel stops a pending removal. Caller holds s.mu.
func (s *ExpiringStrategy[K, V]) cancel(id K) {
	if e, ok := s.expiries[id]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.expiries, id)
	}
}

// OnWillGet increments the count and cancels a pending removal.
func (s *ExpiringStrategy[K, V]) OnWillGet(id K) {
	s.mu.Lock()
	s.counts[id]++
	s.cancel(id)
	s.mu.Unlock()
}

// OnDidGet does nothing.
func (s *ExpiringStrategy[K, V]) OnDidGet(K, V) {}

// OnWillRelease decrements the count, never below zero.
func (s *ExpiringStrategy[K, V]) OnWillRelease(id K) {
	s.mu.Lock()
	if s.counts[id] > 0 {
		s.counts[id]--
	}
	s.mu.Unlock()
}

// OnDidRelease schedules removal of id after the grace period when its count is zero.
func (s *ExpiringStrategy[K, V]) OnDidRelease(id K, _ V, remove RemoveFunc[K]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counts[id] != 0 {
		return
	}
	s.cancel(id)

	e := &expiry{}
	timer, err := s.NewManagedTimer(s.ttl, func() {
		s.mu.Lock()
		current := s.expiries[id] == e
		if current {
			delete(s.expiries, id)
		}
		unused := s.counts[id] == 0
		s.mu.Unlock()

		if current && unused {
			_ = remove(id)
		}
	})
	if err != nil {
		// Strategy is disposing; the cache removes everything itself.
		return
	}
	e.timer = timer
	s.expiries[id] = e
}

// OnWillRemove cancels a pending removal.
func (s *ExpiringStrategy[K, V]) OnWillRemove(id K) {
	s.mu.Lock()
	s.cancel(id)
	s.mu.Unlock()
}

// OnDidRemove forgets the count.
func (s *ExpiringStrategy[K, V]) OnDidRemove(id K, _ V) {
	s.mu.Lock()
	delete(s.counts, id)
	s.mu.Unlock()
}
