package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nobletooth/chime/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registryVariants enumerates every store constructor so contract tests run against all of them.
var registryVariants = []struct {
	name string
	new  func() *Registry
}{
	{name: "sorted_array", new: NewSortedArray},
	{name: "heap", new: NewHeap},
	{name: "wheel", new: NewWheel},
	{name: "hashed_wheel", new: NewHashedWheel},
	{name: "hierarchical", new: NewHierarchical},
}

// newIdleRegistry builds a registry whose background ticker effectively never runs, so the test
// can drive expiration deterministically through expireTimers.
func newIdleRegistry(t *testing.T, newRegistry func() *Registry) *Registry {
	t.Helper()
	utils.OverrideFlag(t, "tick_interval", "1h")
	return newRegistry()
}

func TestRegistry_StartAndExpire(t *testing.T) {
	for _, variant := range registryVariants {
		t.Run(variant.name, func(t *testing.T) {
			registry := newIdleRegistry(t, variant.new)
			var fired atomic.Int32

			_, err := registry.StartTimer(1*time.Second, func() { fired.Add(1) })
			require.NoError(t, err)
			_, err = registry.StartTimer(3*time.Second, func() { fired.Add(1) })
			require.NoError(t, err)
			assert.Equal(t, 2, registry.Pending())

			registry.expireTimers() // t=1.
			assert.Equal(t, int32(1), fired.Load())
			registry.expireTimers() // t=2.
			assert.Equal(t, int32(1), fired.Load())
			registry.expireTimers() // t=3.
			assert.Equal(t, int32(2), fired.Load())
			assert.Equal(t, 0, registry.Pending())
		})
	}
}

func TestRegistry_DelayRounding(t *testing.T) {
	for _, variant := range registryVariants {
		t.Run(variant.name, func(t *testing.T) {
			registry := newIdleRegistry(t, variant.new)
			var fired atomic.Int32

			// Sub-second delays round up to one tick; fractional seconds truncate.
			_, err := registry.StartTimer(500*time.Millisecond, func() { fired.Add(1) })
			require.NoError(t, err)
			_, err = registry.StartTimer(2500*time.Millisecond, func() { fired.Add(1) })
			require.NoError(t, err)

			registry.expireTimers() // t=1: the rounded up timer fires.
			assert.Equal(t, int32(1), fired.Load())
			registry.expireTimers() // t=2: 2.5s truncates to 2 ticks.
			assert.Equal(t, int32(2), fired.Load())
		})
	}
}

func TestRegistry_StopTimer(t *testing.T) {
	for _, variant := range registryVariants {
		t.Run(variant.name, func(t *testing.T) {
			registry := newIdleRegistry(t, variant.new)
			var fired atomic.Int32

			handle, err := registry.StartTimer(1*time.Second, func() { fired.Add(1) })
			require.NoError(t, err)
			registry.StopTimer(handle)
			assert.Equal(t, 0, registry.Pending())

			registry.expireTimers()
			registry.expireTimers()
			assert.Equal(t, int32(0), fired.Load(), "A cancelled timer must never fire")

			// The handle is consumed: stopping again must be a silent no-op.
			registry.StopTimer(handle)
			registry.StopTimer(Handle{})
		})
	}
}

func TestRegistry_StartStopRoundTrip(t *testing.T) {
	// Starting and immediately stopping a timer must leave the registry indistinguishable from
	// never having made the calls: same population, and later timers behave identically.
	for _, variant := range registryVariants {
		t.Run(variant.name, func(t *testing.T) {
			registry := newIdleRegistry(t, variant.new)
			var fired atomic.Int32

			handle, err := registry.StartTimer(5*time.Second, func() { fired.Add(1) })
			require.NoError(t, err)
			registry.StopTimer(handle)
			assert.Equal(t, 0, registry.Pending())

			_, err = registry.StartTimer(2*time.Second, func() { fired.Add(1) })
			require.NoError(t, err)
			registry.expireTimers()
			assert.Equal(t, int32(0), fired.Load())
			registry.expireTimers()
			assert.Equal(t, int32(1), fired.Load())
			assert.Equal(t, 0, registry.Pending())
		})
	}
}

func TestRegistry_DelayOutOfRange(t *testing.T) {
	t.Run("hierarchical rejects a day", func(t *testing.T) {
		registry := newIdleRegistry(t, NewHierarchical)
		_, err := registry.StartTimer(24*time.Hour, func() {})
		assert.ErrorIs(t, err, ErrDelayOutOfRange)
		assert.Equal(t, 0, registry.Pending())
	})

	t.Run("hierarchical accepts just below a day", func(t *testing.T) {
		registry := newIdleRegistry(t, NewHierarchical)
		_, err := registry.StartTimer(24*time.Hour-time.Second, func() {})
		assert.NoError(t, err)
	})

	t.Run("wheel accepts beyond the wheel span via overflow", func(t *testing.T) {
		registry := newIdleRegistry(t, NewWheel)
		_, err := registry.StartTimer(200_000*time.Second, func() {})
		assert.NoError(t, err)
		assert.Equal(t, 1, registry.Pending())
	})
}

func TestRegistry_ActionPanicDoesNotStopExpiration(t *testing.T) {
	for _, variant := range registryVariants {
		t.Run(variant.name, func(t *testing.T) {
			registry := newIdleRegistry(t, variant.new)
			var fired atomic.Int32

			_, err := registry.StartTimer(1*time.Second, func() { panic("boom") })
			require.NoError(t, err)
			_, err = registry.StartTimer(2*time.Second, func() { fired.Add(1) })
			require.NoError(t, err)

			require.NotPanics(t, func() { registry.expireTimers() })
			registry.expireTimers()
			assert.Equal(t, int32(1), fired.Load(), "Timers after a panicking one must still fire")
			assert.Equal(t, 0, registry.Pending())
		})
	}
}

func TestRegistry_ConcurrentStarts(t *testing.T) {
	const goroutines = 1000
	for _, variant := range registryVariants {
		t.Run(variant.name, func(t *testing.T) {
			registry := newIdleRegistry(t, variant.new)
			var fired atomic.Int32

			var wg sync.WaitGroup
			for range goroutines {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := registry.StartTimer(1*time.Second, func() { fired.Add(1) })
					assert.NoError(t, err)
				}()
			}
			wg.Wait()
			require.Equal(t, goroutines, registry.Pending())

			registry.expireTimers()
			registry.expireTimers()
			assert.Equal(t, int32(goroutines), fired.Load(), "Every action runs exactly once")
			assert.Equal(t, 0, registry.Pending())
		})
	}
}

func TestRegistry_ConcurrentStops(t *testing.T) {
	registry := newIdleRegistry(t, NewHashedWheel)
	var fired atomic.Int32

	const timers = 500
	handles := make([]Handle, timers)
	for i := range timers {
		handle, err := registry.StartTimer(1*time.Second, func() { fired.Add(1) })
		require.NoError(t, err)
		handles[i] = handle
	}

	// Stop every other timer from concurrent goroutines.
	var wg sync.WaitGroup
	for i := 0; i < timers; i += 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.StopTimer(handles[i])
		}()
	}
	wg.Wait()

	registry.expireTimers()
	assert.Equal(t, int32(timers/2), fired.Load())
	assert.Equal(t, 0, registry.Pending())
}
