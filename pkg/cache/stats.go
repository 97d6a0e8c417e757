package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks cache activity. It is always collected.
type Statistics struct {
	hits          atomic.Int64
	misses        atomic.Int64
	releases      atomic.Int64
	removals      atomic.Int64
	factoryErrors atomic.Int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Hit records a get served by an existing slot.
func (s *Statistics) Hit() {
	s.hits.Add(1)
}

// Miss records a get that installed a new slot.
func (s *Statistics) Miss() {
	s.misses.Add(1)
}

// Release records a release of an existing slot.
func (s *Statistics) Release() {
	s.releases.Add(1)
}

// Removal records a removal of an existing slot.
func (s *Statistics) Removal() {
	s.removals.Add(1)
}

// FactoryError records a failed factory.
func (s *Statistics) FactoryError() {
	s.factoryErrors.Add(1)
}

// UpdateSize updates the current number of slots.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Hits returns the total number of hits.
func (s *Statistics) Hits() int64 {
	return s.hits.Load()
}

// Misses returns the total number of misses.
func (s *Statistics) Misses() int64 {
	return s.misses.Load()
}

// Releases returns the total number of releases.
func (s *Statistics) Releases() int64 {
	return s.releases.Load()
}

// Removals returns the total number of removals.
func (s *Statistics) Removals() int64 {
	return s.removals.Load()
}

// FactoryErrors returns the total number of failed factories.
func (s *Statistics) FactoryErrors() int64 {
	return s.factoryErrors.Load()
}

// CurrentSize returns the current number of slots.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the largest number of slots held at once.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// HitRatio returns hits / (hits + misses), or 0 with no gets.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Uptime returns how long the cache has been running.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// StatsSummary is a snapshot of all statistics.
type StatsSummary struct {
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	Releases      int64         `json:"releases"`
	Removals      int64         `json:"removals"`
	FactoryErrors int64         `json:"factory_errors"`
	CurrentSize   int64         `json:"current_size"`
	MaxSize       int64         `json:"max_size"`
	HitRatio      float64       `json:"hit_ratio"`
	Uptime        time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:          s.Hits(),
		Misses:        s.Misses(),
		Releases:      s.Releases(),
		Removals:      s.Removals(),
		FactoryErrors: s.FactoryErrors(),
		CurrentSize:   s.CurrentSize(),
		MaxSize:       s.MaxSize(),
		HitRatio:      s.HitRatio(),
		Uptime:        s.Uptime(),
	}
}
