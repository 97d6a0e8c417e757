package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semcache/errors"
)

// getAndRelease gets id through the cache and releases it straight away.
func getAndRelease(t *testing.T, c *Cache[string, *resource], id string, calls *atomic.Int32) {
	t.Helper()
	ctx := testContext(t)
	_, err := c.Get(ctx, id, func() (*resource, error) {
		calls.Add(1)
		return &resource{id: id}, nil
	})
	require.NoError(t, err)
	done, err := c.Release(id)
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))
}

func TestReferenceCounting_KeepsEntryWhileReferenced(t *testing.T) {
	strategy := NewReferenceCountingStrategy[string, *resource]()
	c := newTestCache(t, WithStrategy[string, *resource](strategy))
	ctx := testContext(t)
	factory := func() (*resource, error) { return &resource{id: "a"}, nil }

	_, err := c.Get(ctx, "a", factory)
	require.NoError(t, err)
	_, err = c.Get(ctx, "a", factory)
	require.NoError(t, err)
	assert.Equal(t, 2, strategy.Count("a"))

	done, err := c.Release("a")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))
	assert.True(t, c.Contains("a"))
	assert.Equal(t, 1, strategy.Count("a"))

	done, err = c.Release("a")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))
	assert.False(t, c.Contains("a"))
	assert.Equal(t, 0, strategy.Count("a"))
}

// heldRemoval holds the first removal a reference counting strategy requests
// until proceed is closed.
type heldRemoval struct {
	*ReferenceCountingStrategy[string, *resource]
	once    sync.Once
	reached chan struct{}
	proceed chan struct{}
}

func (h *heldRemoval) OnDidRelease(id string, v *resource, remove RemoveFunc[string]) {
	h.ReferenceCountingStrategy.OnDidRelease(id, v, func(id string) error {
		h.once.Do(func() {
			close(h.reached)
			<-h.proceed
		})
		return remove(id)
	})
}

func TestReferenceCounting_GetDuringRemovalKeepsEntry(t *testing.T) {
	strategy := &heldRemoval{
		ReferenceCountingStrategy: NewReferenceCountingStrategy[string, *resource](),
		reached:                   make(chan struct{}),
		proceed:                   make(chan struct{}),
	}
	c := newTestCache(t, WithStrategy[string, *resource](strategy))
	ctx := testContext(t)
	var calls atomic.Int32
	factory := func() (*resource, error) {
		calls.Add(1)
		return &resource{id: "a"}, nil
	}

	_, err := c.Get(ctx, "a", factory)
	require.NoError(t, err)
	released, err := c.Release("a")
	require.NoError(t, err)

	select {
	case <-strategy.reached:
	case <-time.After(waitTimeout):
		t.Fatal("strategy never asked for the removal")
	}

	// The count already read zero; this get takes the entry back.
	_, err = c.Get(ctx, "a", factory)
	require.NoError(t, err)
	close(strategy.proceed)
	require.NoError(t, released.Wait(ctx))

	assert.True(t, c.Contains("a"))
	assert.Equal(t, []string{"a"}, c.LiveKeys())
	assert.Equal(t, 1, strategy.Count("a"))
	assert.Equal(t, int32(1), calls.Load())

	released, err = c.Release("a")
	require.NoError(t, err)
	require.NoError(t, released.Wait(ctx))
	assert.False(t, c.Contains("a"))
	assert.Equal(t, 0, strategy.Count("a"))
}

func TestReferenceCounting_GetReleaseGet(t *testing.T) {
	// get; release; get before the release settles keeps the slot.
	c := newTestCache(t)
	ctx := testContext(t)
	gate := &gatedFactory{}

	_, err := c.GetAsync("a", gate.factory("a"))
	require.NoError(t, err)
	released, err := c.Release("a")
	require.NoError(t, err)
	second, err := c.GetAsync("a", gate.factory("a"))
	require.NoError(t, err)

	gate.open(&resource{id: "a"})
	require.NoError(t, released.Wait(ctx))
	assert.Equal(t, "a", await(t, second).id)
	assert.True(t, c.Contains("a"))
	assert.Equal(t, int32(1), gate.calls.Load())
}

func TestReferenceCounting_GetRemoveGet(t *testing.T) {
	c := newTestCache(t)
	ctx := testContext(t)
	var calls atomic.Int32
	factory := func() (*resource, error) {
		calls.Add(1)
		return &resource{}, nil
	}

	_, err := c.Get(ctx, "a", factory)
	require.NoError(t, err)
	done, err := c.Remove("a")
	require.NoError(t, err)
	_, err = c.Get(ctx, "a", factory)
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))

	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, c.Contains("a"))
}

func TestReferenceCounting_ReleaseWithoutGetFloorsAtZero(t *testing.T) {
	s := NewReferenceCountingStrategy[string, int]()
	s.OnWillRelease("a")
	s.OnWillRelease("a")
	assert.Equal(t, 0, s.Count("a"))

	s.OnWillGet("a")
	assert.Equal(t, 1, s.Count("a"))

	var removed []string
	s.OnWillRelease("a")
	s.OnDidRelease("a", 0, func(id string) error {
		removed = append(removed, id)
		return nil
	})
	assert.Equal(t, []string{"a"}, removed)

	s.OnDidRemove("a", 0)
	assert.Equal(t, 0, s.Count("a"))
}

func TestLRU_InvalidKeep(t *testing.T) {
	_, err := NewLeastRecentlyUsedStrategy[string, int](-1)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))

	s, err := NewLeastRecentlyUsedStrategy[string, int](0)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Keep())
}

func TestLRU_EvictsAfterKeepReleases(t *testing.T) {
	for _, keep := range []int{0, 1, 3} {
		strategy, err := NewLeastRecentlyUsedStrategy[string, *resource](keep)
		require.NoError(t, err)
		c := newTestCache(t, WithStrategy[string, *resource](strategy))
		var calls atomic.Int32

		getAndRelease(t, c, "first", &calls)
		for i := 0; i < keep; i++ {
			assert.True(t, c.Contains("first"), "keep=%d after %d releases", keep, i)
			getAndRelease(t, c, string(rune('a'+i)), &calls)
		}
		assert.False(t, c.Contains("first"), "keep=%d after %d releases", keep, keep)
		if keep > 0 {
			assert.Len(t, strategy.Pending(), keep)
		}

		var extra atomic.Int32
		getAndRelease(t, c, "extra", &extra)
		assert.False(t, c.Contains("first"), "keep=%d", keep)
		assert.Len(t, c.ReleasedKeys(), keep)
	}
}

func TestLRU_GetRescuesReleasedEntry(t *testing.T) {
	strategy, err := NewLeastRecentlyUsedStrategy[string, *resource](1)
	require.NoError(t, err)
	c := newTestCache(t, WithStrategy[string, *resource](strategy))
	var calls atomic.Int32

	getAndRelease(t, c, "a", &calls)
	assert.Equal(t, []string{"a"}, strategy.Pending())

	getAndRelease(t, c, "a", &calls)
	assert.Equal(t, int32(1), calls.Load())

	// a is live again and no longer queued
	ctx := testContext(t)
	_, err = c.Get(ctx, "a", func() (*resource, error) { return &resource{}, nil })
	require.NoError(t, err)
	assert.Empty(t, strategy.Pending())

	getAndRelease(t, c, "b", &calls)
	getAndRelease(t, c, "c", &calls)
	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
	assert.Equal(t, []string{"c"}, strategy.Pending())
}

func TestLRU_RemoveDropsFromQueue(t *testing.T) {
	strategy, err := NewLeastRecentlyUsedStrategy[string, *resource](2)
	require.NoError(t, err)
	c := newTestCache(t, WithStrategy[string, *resource](strategy))
	var calls atomic.Int32

	getAndRelease(t, c, "a", &calls)
	getAndRelease(t, c, "b", &calls)
	assert.Equal(t, []string{"b", "a"}, strategy.Pending())

	done, err := c.Remove("a")
	require.NoError(t, err)
	require.NoError(t, done.Wait(testContext(t)))
	assert.Equal(t, []string{"b"}, strategy.Pending())
}

func TestExpiring_InvalidTTL(t *testing.T) {
	_, err := NewExpiringStrategy[string, int](0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestExpiring_RemovesAfterTTL(t *testing.T) {
	strategy, err := NewExpiringStrategy[string, *resource](50 * time.Millisecond)
	require.NoError(t, err)
	c := newTestCache(t, WithStrategy[string, *resource](strategy))
	var calls atomic.Int32

	getAndRelease(t, c, "a", &calls)
	assert.True(t, c.Contains("a"))
	assert.True(t, strategy.Scheduled("a"))

	assert.Eventually(t, func() bool { return !c.Contains("a") }, waitTimeout, 5*time.Millisecond)
	assert.False(t, strategy.Scheduled("a"))
}

func TestExpiring_GetCancelsRemoval(t *testing.T) {
	strategy, err := NewExpiringStrategy[string, *resource](30 * time.Millisecond)
	require.NoError(t, err)
	c := newTestCache(t, WithStrategy[string, *resource](strategy))
	var calls atomic.Int32

	getAndRelease(t, c, "a", &calls)
	require.True(t, strategy.Scheduled("a"))

	_, err = c.Get(testContext(t), "a", func() (*resource, error) { return &resource{}, nil })
	require.NoError(t, err)
	assert.False(t, strategy.Scheduled("a"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, c.Contains("a"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestExpiring_DisposeStopsTimers(t *testing.T) {
	strategy, err := NewExpiringStrategy[string, *resource](time.Hour)
	require.NoError(t, err)
	c, err := New[string, *resource](WithStrategy[string, *resource](strategy))
	require.NoError(t, err)
	var calls atomic.Int32

	getAndRelease(t, c, "a", &calls)
	require.True(t, strategy.Scheduled("a"))

	require.NoError(t, c.Dispose().Wait(testContext(t)))
	assert.True(t, strategy.IsDisposed())
	assert.False(t, c.Contains("a"))
	assert.False(t, strategy.Scheduled("a"))
}

func TestNoopStrategy_NeverRemoves(t *testing.T) {
	c := newTestCache(t, WithStrategy[string, *resource](NoopStrategy[string, *resource]{}))
	var calls atomic.Int32

	for i := 0; i < 5; i++ {
		getAndRelease(t, c, "a", &calls)
	}
	assert.True(t, c.Contains("a"))
	assert.Equal(t, int32(1), calls.Load())
}
