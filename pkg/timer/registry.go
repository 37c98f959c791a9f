package timer

import (
	"sync"
	"time"
	"weak"

	"github.com/nobletooth/chime/pkg/utils"
)

var registryInvariants = utils.NewInvariants("registry")

// Scheduler is the public timer registry contract. Both Registry and ShardedRegistry satisfy it,
// so callers that only schedule and cancel don't care whether the registry is sharded.
type Scheduler interface {
	// StartTimer schedules action to run once the delay elapses and returns a cancellation
	// handle. The delay is interpreted in whole seconds (truncated); sub-second delays round up
	// to a single tick. The action is never invoked synchronously.
	StartTimer(delay time.Duration, action Action) (Handle, error)
	// StopTimer cancels the referenced timer if it is still pending. Stale handles (already
	// fired or already cancelled) are a silent no-op. After StopTimer returns having observed
	// the timer as pending, the action will never run.
	StopTimer(handle Handle)
	// Pending returns the number of timers waiting to fire.
	Pending() int
}

// Registry is a timer registry backed by one of the variant stores. A single mutex guards the
// whole state; the background ticker is the only caller of the expiration step.
//
// The ticker holds only a weak reference: dropping the last caller reference to the Registry is
// its teardown signal. There is no close or join; pending timers of a collected registry are
// dropped unfired.
type Registry struct {
	mux   sync.Mutex
	store store
}

// newRegistry wraps a store and spawns its ticker goroutine.
func newRegistry(s store) *Registry {
	registry := &Registry{store: s}
	go runTicker(weak.Make(registry), *tickInterval)
	return registry
}

// NewSortedArray creates a registry backed by a flat array of timers. O(1) insertion, O(n) per
// tick and per cancellation. The reference layout the other stores are measured against.
func NewSortedArray() *Registry {
	return newRegistry(newSortedArrayStore())
}

// NewHeap creates a registry backed by a min-heap ordered by deadline. O(log n) insertion,
// O(expired * log n) per tick, O(n) cancellation.
func NewHeap() *Registry {
	return newRegistry(newHeapStore())
}

// NewWheel creates a registry backed by a single-level timing wheel of -wheel_size buckets.
// O(1) insertion and amortized O(expired) per tick; delays beyond the wheel span wait on an
// overflow list that is drained once per wheel revolution.
func NewWheel() *Registry {
	return newRegistry(newWheelStore())
}

// NewHashedWheel creates a registry backed by a 256-bucket hashed wheel whose buckets are kept
// sorted by round counter, so expiration only walks the bucket prefix that is due. Supports
// delays up to 2^32 seconds in O(W + n) memory.
func NewHashedWheel() *Registry {
	return newRegistry(newHashedWheelStore())
}

// NewHierarchical creates a registry backed by three cascaded wheels (seconds, minutes, hours)
// advancing like an analog clock. O(1) insertion and cancellation; supports delays up to
// 23h59m59s.
func NewHierarchical() *Registry {
	return newRegistry(newHierarchicalStore())
}

// StartTimer implements Scheduler.
func (r *Registry) StartTimer(delay time.Duration, action Action) (Handle, error) {
	if action == nil {
		registryInvariants.Raise("nil_action", "A timer was started without an action.")
		return Handle{}, nil
	}
	seconds := uint64(delay / time.Second)
	if delay < 0 {
		registryInvariants.Raise("negative_delay", "A timer was started with a negative delay.",
			"delay", delay)
		seconds = 0
	}
	if seconds == 0 { // Sub-second delays still wait for the next tick.
		seconds = 1
	}

	r.mux.Lock()
	defer r.mux.Unlock()
	handle, err := r.store.schedule(seconds, action)
	if err != nil {
		return Handle{}, err
	}
	startedMetric.WithLabelValues(r.store.variant()).Inc()
	pendingMetric.WithLabelValues(r.store.variant()).Inc()
	return handle, nil
}

// StopTimer implements Scheduler.
func (r *Registry) StopTimer(handle Handle) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.store.cancel(handle) {
		cancelledMetric.WithLabelValues(r.store.variant()).Inc()
		pendingMetric.WithLabelValues(r.store.variant()).Dec()
	}
}

// Pending implements Scheduler.
func (r *Registry) Pending() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.store.pending()
}

// expireTimers advances the registry clock by one tick and fires every action that became due.
// The ticker goroutine is its only caller; actions therefore always run on the ticker goroutine,
// under the registry lock.
func (r *Registry) expireTimers() {
	r.mux.Lock()
	defer r.mux.Unlock()
	before := r.store.pending()
	r.store.tick()
	// Several registries of one variant share the gauge, so apply the delta rather than setting it.
	pendingMetric.WithLabelValues(r.store.variant()).Sub(float64(before - r.store.pending()))
}

var _ Scheduler = (*Registry)(nil)
