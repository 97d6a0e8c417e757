package cache

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/future"
)

const waitTimeout = 2 * time.Second

type resource struct {
	id string
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

// gatedFactory returns an async factory whose futures settle only when open is called.
type gatedFactory struct {
	calls atomic.Int32
	mu    sync.Mutex
	gates []*future.Completer[*resource]
}

func (g *gatedFactory) factory(id string) func() *future.Future[*resource] {
	return func() *future.Future[*resource] {
		g.calls.Add(1)
		c := future.NewCompleter[*resource]()
		g.mu.Lock()
		g.gates = append(g.gates, c)
		g.mu.Unlock()
		return c.Future()
	}
}

func (g *gatedFactory) open(r *resource) {
	g.mu.Lock()
	gates := g.gates
	g.gates = nil
	g.mu.Unlock()
	for _, c := range gates {
		c.Complete(r)
	}
}

func newTestCache(t *testing.T, opts ...Option[string, *resource]) *Cache[string, *resource] {
	t.Helper()
	c, err := New[string, *resource](opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Dispose() })
	return c
}

func await[T any](t *testing.T, f *future.Future[T]) T {
	t.Helper()
	v, err := f.Await(testContext(t))
	require.NoError(t, err)
	return v
}

func TestCache_GetCallsFactoryOnce(t *testing.T) {
	c := newTestCache(t)
	ctx := testContext(t)

	var calls int
	factory := func() (*resource, error) {
		calls++
		return &resource{id: "a"}, nil
	}

	first, err := c.Get(ctx, "a", factory)
	require.NoError(t, err)
	second, err := c.Get(ctx, "a", factory)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), c.Stats().Misses())
	assert.Equal(t, int64(1), c.Stats().Hits())
}

func TestCache_GetAsyncCoalesces(t *testing.T) {
	c := newTestCache(t)
	gate := &gatedFactory{}

	f1, err := c.GetAsync("a", gate.factory("a"))
	require.NoError(t, err)
	f2, err := c.GetAsync("a", gate.factory("a"))
	require.NoError(t, err)
	f3, err := c.GetAsync("a", gate.factory("a"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), gate.calls.Load())
	assert.False(t, f1.IsDone())

	want := &resource{id: "a"}
	gate.open(want)

	assert.Same(t, want, await(t, f1))
	assert.Same(t, want, await(t, f2))
	assert.Same(t, want, await(t, f3))
	assert.Equal(t, int32(1), gate.calls.Load())
}

func TestCache_ConcurrentGetsCoalesce(t *testing.T) {
	c := newTestCache(t)
	ctx := testContext(t)

	release := make(chan struct{})
	var calls atomic.Int32
	factory := func() (*resource, error) {
		calls.Add(1)
		<-release
		return &resource{id: "shared"}, nil
	}

	var wg sync.WaitGroup
	results := make([]*resource, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.Get(ctx, "shared", factory)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, waitTimeout, time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_FactoryErrorStaysUntilRemoved(t *testing.T) {
	c := newTestCache(t, WithStrategy[string, *resource](NoopStrategy[string, *resource]{}))
	ctx := testContext(t)

	boom := stderrors.New("boom")
	var calls int
	failing := func() (*resource, error) {
		calls++
		return nil, boom
	}

	_, err := c.Get(ctx, "a", failing)
	require.Error(t, err)
	assert.True(t, errors.IsFactoryError(err))
	assert.ErrorIs(t, err, boom)

	_, err = c.Get(ctx, "a", failing)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), c.Stats().FactoryErrors())

	// Release and remove swallow the factory error.
	done, err := c.Release("a")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))

	done, err = c.Remove("a")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))

	v, err := c.Get(ctx, "a", func() (*resource, error) { return &resource{id: "a"}, nil })
	require.NoError(t, err)
	assert.Equal(t, "a", v.id)
}

func TestCache_FactoryPanicAndNilFuture(t *testing.T) {
	c := newTestCache(t)
	ctx := testContext(t)

	_, err := c.Get(ctx, "panic", func() (*resource, error) { panic("factory exploded") })
	require.Error(t, err)
	assert.True(t, errors.IsFactoryError(err))
	assert.Contains(t, err.Error(), "factory exploded")

	f, err := c.GetAsync("nil", func() *future.Future[*resource] { return nil })
	require.NoError(t, err)
	_, err = f.Await(ctx)
	assert.True(t, errors.IsFactoryError(err))
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestCache_NilArguments(t *testing.T) {
	c := newTestCache(t)

	_, err := c.Get(testContext(t), "a", nil)
	assert.True(t, errors.IsInvalidArgument(err))
	_, err = c.GetAsync("a", nil)
	assert.True(t, errors.IsInvalidArgument(err))
	_, err = c.ApplyToItem("a", nil)
	assert.True(t, errors.IsInvalidArgument(err))
	assert.Equal(t, 0, c.Len())
}

func TestCache_GetContextCanceled(t *testing.T) {
	c := newTestCache(t)
	gate := &gatedFactory{}
	_, err := c.GetAsync("slow", gate.factory("slow"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, "slow", func() (*resource, error) { t.Fatal("slot exists"); return nil, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	gate.open(&resource{id: "slow"})
}

func TestCache_ReleaseAndKeys(t *testing.T) {
	c := newTestCache(t, WithStrategy[string, *resource](NoopStrategy[string, *resource]{}))
	ctx := testContext(t)
	factory := func() (*resource, error) { return &resource{}, nil }

	for _, id := range []string{"a", "b", "c"} {
		_, err := c.Get(ctx, id, factory)
		require.NoError(t, err)
	}

	done, err := c.Release("b")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))

	assert.ElementsMatch(t, []string{"a", "c"}, c.LiveKeys())
	assert.ElementsMatch(t, []string{"b"}, c.ReleasedKeys())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, c.Keys())
	assert.Equal(t, 3, c.Len())

	// A new get un-releases the id.
	_, err = c.Get(ctx, "b", factory)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, c.LiveKeys())
	assert.Empty(t, c.ReleasedKeys())

	values, err := c.LiveValues(ctx)
	require.NoError(t, err)
	assert.Len(t, values, 3)
}

func TestCache_ReleaseAndRemoveUnknownAreNoops(t *testing.T) {
	c := newTestCache(t)
	ctx := testContext(t)

	var events atomic.Int32
	c.DidRelease().Listen(func(Context[string, *resource]) { events.Add(1) })
	c.DidRemove().Listen(func(Context[string, *resource]) { events.Add(1) })

	done, err := c.Release("ghost")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))
	done, err = c.Remove("ghost")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))

	assert.Equal(t, int32(0), events.Load())
	assert.Empty(t, c.ReleasedKeys())
	assert.Equal(t, int64(0), c.Stats().Releases())
}

func TestCache_Events(t *testing.T) {
	c := newTestCache(t, WithStrategy[string, *resource](NoopStrategy[string, *resource]{}))
	ctx := testContext(t)

	var mu sync.Mutex
	var log []string
	record := func(kind string) func(Context[string, *resource]) {
		return func(ev Context[string, *resource]) {
			mu.Lock()
			defer mu.Unlock()
			entry := kind + ":" + ev.ID
			if ev.Cleared {
				entry += ":cleared"
			}
			log = append(log, entry)
		}
	}
	c.DidUpdate().Listen(record("update"))
	c.DidRelease().Listen(record("release"))
	c.DidRemove().Listen(record("remove"))

	_, err := c.Get(ctx, "a", func() (*resource, error) { return &resource{id: "a"}, nil })
	require.NoError(t, err)
	_, err = c.Get(ctx, "a", func() (*resource, error) { return &resource{id: "a"}, nil })
	require.NoError(t, err)

	done, err := c.Release("a")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))

	done, err = c.Remove("a")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"update:a", "release:a", "remove:a", "update:a:cleared"}, log)
}

func TestCache_UpdateListenerCanGetSameID(t *testing.T) {
	c := newTestCache(t)
	ctx := testContext(t)
	var calls atomic.Int32
	factory := func() (*resource, error) {
		calls.Add(1)
		return &resource{id: "a"}, nil
	}

	type result struct {
		r   *resource
		err error
	}
	inner := make(chan result, 1)
	c.DidUpdate().Listen(func(ev Context[string, *resource]) {
		if ev.Cleared {
			return
		}
		r, err := c.Get(ctx, ev.ID, factory)
		inner <- result{r: r, err: err}
	})

	outer, err := c.Get(ctx, "a", factory)
	require.NoError(t, err)

	select {
	case got := <-inner:
		require.NoError(t, got.err)
		assert.Same(t, outer, got.r)
	case <-time.After(waitTimeout):
		t.Fatal("listener get did not return")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_UpdateListenerCanGetAsyncSameID(t *testing.T) {
	c := newTestCache(t)
	gate := &gatedFactory{}

	inner := make(chan *future.Future[*resource], 1)
	c.DidUpdate().Listen(func(ev Context[string, *resource]) {
		if ev.Cleared {
			return
		}
		f, err := c.GetAsync(ev.ID, gate.factory(ev.ID))
		if err == nil {
			inner <- f
		}
	})

	first, err := c.GetAsync("a", gate.factory("a"))
	require.NoError(t, err)
	want := &resource{id: "a"}
	gate.open(want)

	assert.Same(t, want, await(t, first))
	select {
	case f := <-inner:
		assert.Same(t, want, await(t, f))
	case <-time.After(waitTimeout):
		t.Fatal("listener never ran")
	}
	assert.Equal(t, int32(1), gate.calls.Load())
}

func TestCache_RemoveEventCarriesValue(t *testing.T) {
	c := newTestCache(t)
	ctx := testContext(t)
	want := &resource{id: "a"}

	removed := make(chan Context[string, *resource], 1)
	c.DidRemove().Listen(func(ev Context[string, *resource]) { removed <- ev })

	_, err := c.Get(ctx, "a", func() (*resource, error) { return want, nil })
	require.NoError(t, err)
	done, err := c.Remove("a")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))

	ev := <-removed
	assert.Equal(t, "a", ev.ID)
	assert.Same(t, want, ev.Value)
	assert.False(t, ev.Cleared)
}

func TestCache_ApplyToItem(t *testing.T) {
	c := newTestCache(t, WithStrategy[string, *resource](NoopStrategy[string, *resource]{}))
	ctx := testContext(t)

	called := false
	ok, err := c.ApplyToItem("never-seen", func(*future.Future[*resource]) *future.Signal {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, called)

	_, err = c.Get(ctx, "live", func() (*resource, error) { return &resource{id: "live"}, nil })
	require.NoError(t, err)

	var seen *resource
	ok, err = c.ApplyToItem("live", func(f *future.Future[*resource]) *future.Signal {
		seen, _, _ = f.Result()
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, seen)
	assert.Equal(t, "live", seen.id)

	_, err = c.Get(ctx, "released", func() (*resource, error) { return &resource{}, nil })
	require.NoError(t, err)
	done, err := c.Release("released")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))

	ok, err = c.ApplyToItem("released", func(*future.Future[*resource]) *future.Signal {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, called)
}

func TestCache_ApplyToItemReceivesPendingValue(t *testing.T) {
	c := newTestCache(t)
	gate := &gatedFactory{}
	_, err := c.GetAsync("a", gate.factory("a"))
	require.NoError(t, err)

	var pending bool
	ok, err := c.ApplyToItem("a", func(f *future.Future[*resource]) *future.Signal {
		pending = !f.IsDone()
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, pending)

	gate.open(&resource{id: "a"})
}

func TestCache_RemoveWaitsForApplyToItem(t *testing.T) {
	c := newTestCache(t)
	ctx := testContext(t)

	_, err := c.Get(ctx, "a", func() (*resource, error) { return &resource{id: "a"}, nil })
	require.NoError(t, err)

	callback := future.NewSignalCompleter()
	ok, err := c.ApplyToItem("a", func(*future.Future[*resource]) *future.Signal {
		return callback.Future()
	})
	require.NoError(t, err)
	require.True(t, ok)

	var callbackDone atomic.Bool
	var doneBeforeEvent atomic.Bool
	removed := make(chan struct{})
	c.DidRemove().Listen(func(Context[string, *resource]) {
		doneBeforeEvent.Store(callbackDone.Load())
		close(removed)
	})

	done, err := c.Remove("a")
	require.NoError(t, err)
	assert.False(t, c.Contains("a"))

	select {
	case <-removed:
		t.Fatal("remove completed before the ApplyToItem callback")
	case <-time.After(20 * time.Millisecond):
	}

	callbackDone.Store(true)
	future.Resolve(callback)
	require.NoError(t, done.Wait(ctx))
	<-removed
	assert.True(t, doneBeforeEvent.Load())
}

func TestCache_ApplyToItemPanic(t *testing.T) {
	c := newTestCache(t)
	ctx := testContext(t)
	_, err := c.Get(ctx, "a", func() (*resource, error) { return &resource{}, nil })
	require.NoError(t, err)

	ok, err := c.ApplyToItem("a", func(*future.Future[*resource]) *future.Signal { panic("callback exploded") })
	assert.True(t, ok)
	require.Error(t, err)

	// The failed callback does not block removal.
	done, err := c.Remove("a")
	require.NoError(t, err)
	require.NoError(t, done.Wait(ctx))
}

func TestCache_OperationsAfterDispose(t *testing.T) {
	c, err := New[string, *resource]()
	require.NoError(t, err)
	ctx := testContext(t)

	_, err = c.Get(ctx, "a", func() (*resource, error) { return &resource{}, nil })
	require.NoError(t, err)

	require.NoError(t, c.Dispose().Wait(ctx))

	_, err = c.Get(ctx, "a", func() (*resource, error) { return &resource{}, nil })
	assert.True(t, errors.IsInvalidState(err))
	_, err = c.GetAsync("a", func() *future.Future[*resource] { return nil })
	assert.True(t, errors.IsInvalidState(err))
	_, err = c.Release("a")
	assert.True(t, errors.IsInvalidState(err))
	_, err = c.Remove("a")
	assert.True(t, errors.IsInvalidState(err))
	_, err = c.ApplyToItem("a", func(*future.Future[*resource]) *future.Signal { return nil })
	assert.True(t, errors.IsInvalidState(err))
}

func TestCache_RejectsOperationsOnceDisposeRequested(t *testing.T) {
	c, err := New[string, *resource]()
	require.NoError(t, err)

	gate := &gatedFactory{}
	pending, err := c.GetAsync("slow", gate.factory("slow"))
	require.NoError(t, err)

	sig := c.Dispose()
	_, err = c.Release("slow")
	assert.True(t, errors.IsInvalidState(err))

	// Disposal waits for the in-flight factory.
	select {
	case <-sig.Done():
		t.Fatal("dispose finished while a factory was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	gate.open(&resource{id: "slow"})
	require.NoError(t, sig.Wait(testContext(t)))
	assert.Equal(t, "slow", await(t, pending).id)
}

func TestCache_DisposeRemovesEntriesAndClosesStreams(t *testing.T) {
	strategy := NewReferenceCountingStrategy[string, *resource]()
	c, err := New[string, *resource](WithStrategy[string, *resource](strategy))
	require.NoError(t, err)
	ctx := testContext(t)

	var removed []string
	var mu sync.Mutex
	sub := c.DidRemove().Listen(func(ev Context[string, *resource]) {
		mu.Lock()
		removed = append(removed, ev.ID)
		mu.Unlock()
	})

	for _, id := range []string{"a", "b"} {
		_, err := c.Get(ctx, id, func() (*resource, error) { return &resource{id: id}, nil })
		require.NoError(t, err)
	}
	// 1 + three event streams
	assert.Equal(t, 4, c.DisposalTreeSize())

	require.NoError(t, c.Dispose().Wait(ctx))

	mu.Lock()
	assert.ElementsMatch(t, []string{"a", "b"}, removed)
	mu.Unlock()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, strategy.Count("a"))
	assert.True(t, sub.IsCanceled())
	assert.Equal(t, 1, c.DisposalTreeSize())
}

func TestStatistics(t *testing.T) {
	c := newTestCache(t)
	ctx := testContext(t)
	factory := func() (*resource, error) { return &resource{}, nil }

	_, _ = c.Get(ctx, "a", factory)
	_, _ = c.Get(ctx, "a", factory)
	_, _ = c.Get(ctx, "b", factory)
	_, _ = c.Get(ctx, "fail", func() (*resource, error) { return nil, stderrors.New("no") })

	done, _ := c.Release("b")
	require.NoError(t, done.Wait(ctx))

	summary := c.Stats().Summary()
	assert.Equal(t, int64(1), summary.Hits)
	assert.Equal(t, int64(3), summary.Misses)
	assert.Equal(t, int64(1), summary.Releases)
	assert.Equal(t, int64(1), summary.Removals)
	assert.Equal(t, int64(1), summary.FactoryErrors)
	assert.Equal(t, int64(2), summary.CurrentSize)
	assert.Equal(t, int64(3), summary.MaxSize)
	assert.InDelta(t, 0.25, summary.HitRatio, 0.0001)
	assert.Greater(t, summary.Uptime, time.Duration(0))
}
