// Package timer implements an in-process registry for one-shot, second-granularity timers.
// Callers register a deferred action with a delay and get back a cancellation handle; a single
// background ticker advances the registry clock once per tick period and fires due actions.
//
// Five interchangeable stores implement the same contract with different cost profiles: a flat
// sorted array, a min-heap by deadline, a single-level timing wheel with an overflow list, a
// hashed timing wheel with sorted buckets, and a hierarchical (seconds/minutes/hours) wheel.
package timer

import (
	"errors"
	"log/slog"
	"math"
)

// ErrDelayOutOfRange is returned by StartTimer when the requested delay exceeds the span the
// chosen store can represent (24h for the hierarchical wheel, 2^32 seconds for the hashed wheel).
var ErrDelayOutOfRange = errors.New("delay exceeds the range supported by this timer store")

// Action is a one-shot callback invoked when its timer expires. Actions run on the ticker
// goroutine while the registry lock is held: they must be quick and must not call back into the
// registry that fired them, or the ticker deadlocks.
type Action func()

const (
	// noBucket marks handles that don't reference a wheel bucket (sorted array, heap, node handles).
	noBucket = -1
	// overflowBucket marks timers parked on the single-level wheel's overflow list.
	overflowBucket = -2
)

// Handle refers to a pending timer and is sufficient for cancelling it. It is opaque to callers;
// after the timer fires or is cancelled the handle goes stale and further use is a silent no-op.
// The zero Handle is stale.
type Handle struct {
	bucket int    // Wheel bucket index, or one of the marker values above.
	id     uint64 // Timer identity; ids start at 1, so the zero Handle never matches.
	// node is set by the hierarchical store only; it makes cancellation O(1) at the price of
	// requiring node addresses to stay stable for the timer's lifetime.
	node  *linkedListNode[*hierarchicalTimer]
	shard int // Set by ShardedRegistry to route cancellation back to the owning shard.
}

// store is a variant-specific bucket layout holding pending timers. The Registry serializes every
// call under its mutex; implementations assume single-threaded access.
type store interface {
	// variant names the store in metrics and logs.
	variant() string
	// schedule installs a timer that fires delaySeconds ticks from now; the hierarchical store
	// places by residual instead (see hierarchicalStore). The registry guarantees
	// delaySeconds >= 1.
	schedule(delaySeconds uint64, action Action) (Handle, error)
	// cancel removes the referenced timer if it is still pending and reports whether it did.
	// Stale handles are a no-op.
	cancel(h Handle) bool
	// tick advances the store clock by one unit and invokes every action that became due.
	tick()
	// pending returns the number of timers waiting to fire.
	pending() int
}

// nextTimerID hands out the next timer identity. Ids are monotonically non-decreasing and
// saturate at the maximum instead of wrapping, so a pending timer can never collide with a newer
// one. The first id handed out is 1; 0 is reserved for stale handles.
func nextTimerID(counter *uint64) uint64 {
	if *counter < math.MaxUint64 {
		*counter++
	}
	return *counter
}

// fireAction consumes and invokes an expired timer's action, containing panics so that one
// misbehaving caller can't take the ticker down. The timer has already left its bucket by the
// time the action runs.
func fireAction(variant string, action Action) {
	defer func() {
		if r := recover(); r != nil {
			actionPanicsMetric.WithLabelValues(variant).Inc()
			slog.Error("Timer action panicked.", "variant", variant, "panic", r)
		}
	}()
	firedMetric.WithLabelValues(variant).Inc()
	action()
}
