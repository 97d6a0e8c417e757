package health

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/lifecycle"
)

func TestMonitor_TrackAndCheck(t *testing.T) {
	m := NewMonitor(0)
	src := newFakeSource(0, 0)
	require.NoError(t, m.Track("documents", src))

	status, ok := m.Get("documents")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())

	src.state = lifecycle.Disposed
	m.Check()

	status, _ = m.Get("documents")
	assert.True(t, status.IsUnhealthy())
	assert.Contains(t, status.Message, "disposed")
}

func TestMonitor_TrackRejectsBadArguments(t *testing.T) {
	m := NewMonitor(0)
	assert.True(t, errors.IsInvalidArgument(m.Track("", newFakeSource(0, 0))))
	assert.True(t, errors.IsInvalidArgument(m.Track("x", nil)))
	assert.Zero(t, m.Count())
}

func TestMonitor_CustomRatio(t *testing.T) {
	m := NewMonitor(0.9)
	require.NoError(t, m.Track("documents", newFakeSource(10, 5)))

	status, _ := m.Get("documents")
	assert.True(t, status.IsHealthy())
}

func TestMonitor_UpdateOverridesNameAndTimestamp(t *testing.T) {
	m := NewMonitor(0)
	m.Update("documents", Status{Component: "other", Status: "degraded"})

	status, ok := m.Get("documents")
	require.True(t, ok)
	assert.Equal(t, "documents", status.Component)
	assert.False(t, status.Timestamp.IsZero())
}

func TestMonitor_RemoveStopsTracking(t *testing.T) {
	m := NewMonitor(0)
	require.NoError(t, m.Track("documents", newFakeSource(0, 0)))
	m.Remove("documents")
	m.Check()

	_, ok := m.Get("documents")
	assert.False(t, ok)
	assert.Empty(t, m.GetAll())
}

func TestMonitor_AggregateHealth(t *testing.T) {
	m := NewMonitor(0)
	require.NoError(t, m.Track("b", newFakeSource(4, 4)))
	require.NoError(t, m.Track("a", newFakeSource(0, 0)))

	agg := m.AggregateHealth("semcache")
	assert.True(t, agg.IsDegraded())
	require.Len(t, agg.SubStatuses, 2)
	assert.Equal(t, "a", agg.SubStatuses[0].Component)
	assert.Equal(t, []string{"a", "b"}, m.ListComponents())
}

func TestMonitor_Watch(t *testing.T) {
	l := lifecycle.New(lifecycle.WithName("health-test"))
	t.Cleanup(func() { _ = l.Dispose().Wait(t.Context()) })

	m := NewMonitor(0)
	src := newFakeSource(0, 0)
	require.NoError(t, m.Track("documents", src))
	require.NoError(t, m.Watch(l, 5*time.Millisecond))

	for range 4 {
		src.stats.Miss()
		src.stats.FactoryError()
	}
	assert.Eventually(t, func() bool {
		status, _ := m.Get("documents")
		return status.IsDegraded()
	}, time.Second, 5*time.Millisecond)

	assert.True(t, errors.IsInvalidArgument(m.Watch(l, 0)))
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor(0)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("cache-%d", i)
			for range 50 {
				_ = m.Track(name, newFakeSource(1, 0))
				m.Check()
				_ = m.AggregateHealth("semcache")
				_ = m.GetAll()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, m.Count())
}
