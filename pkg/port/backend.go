// The port exposes a timer registry over the network as a delayed-action service: clients
// register a delay with an optional message and get back a numeric id they can cancel with.
// When a timer fires, its message is logged and counted.

package port

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nobletooth/chime/pkg/timer"
)

// Backend bridges the wire protocol to a timer.Scheduler. Handles are process-internal values,
// so the backend maps caller-visible numeric ids onto them and keeps the mapping until the timer
// fires or is stopped.
type Backend struct {
	scheduler timer.Scheduler

	mux    sync.Mutex
	nextID uint64
	// pendingHandles maps the ids handed to clients onto cancellation handles.
	pendingHandles map[uint64]timer.Handle
	// registering holds ids whose StartTimer call hasn't recorded its handle yet.
	registering map[uint64]bool
	// firedEarly holds ids whose action ran before StartTimer got to record the handle; that can
	// happen when a one-tick timer races the tick. StartTimer consumes the entry instead of
	// recording a handle that is already stale.
	firedEarly map[uint64]bool
	firedCount uint64
}

// NewBackend wraps a scheduler for use by the network port.
func NewBackend(scheduler timer.Scheduler) *Backend {
	return &Backend{
		scheduler:      scheduler,
		pendingHandles: make(map[uint64]timer.Handle),
		registering:    make(map[uint64]bool),
		firedEarly:     make(map[uint64]bool),
	}
}

// StartTimer schedules a timer that logs the message when it fires and returns its id.
// The backend lock is never held across scheduler calls: the expiry action takes it while the
// scheduler runs actions under its own lock, so holding both here would invert that order.
func (b *Backend) StartTimer(seconds uint64, message string) (uint64, error) {
	b.mux.Lock()
	b.nextID++
	id := b.nextID
	b.registering[id] = true
	b.mux.Unlock()

	handle, err := b.scheduler.StartTimer(time.Duration(seconds)*time.Second, func() {
		b.onFired(id, message)
	})

	b.mux.Lock()
	defer b.mux.Unlock()
	delete(b.registering, id)
	if err != nil {
		return 0, fmt.Errorf("failed to start a %ds timer: %w", seconds, err)
	}
	if b.firedEarly[id] {
		delete(b.firedEarly, id)
		return id, nil
	}
	b.pendingHandles[id] = handle
	return id, nil
}

// onFired is the expiry action shared by every timer the backend registers. It runs on the
// scheduler's ticker goroutine.
func (b *Backend) onFired(id uint64, message string) {
	b.mux.Lock()
	b.firedCount++
	if _, known := b.pendingHandles[id]; known {
		delete(b.pendingHandles, id)
	} else if b.registering[id] {
		b.firedEarly[id] = true
	}
	// Otherwise a StopTimer raced the tick and lost; it already dropped the handle.
	b.mux.Unlock()
	slog.Info("Timer fired.", "id", id, "message", message)
}

// StopTimer cancels the timer with the given id and reports whether it was still pending.
func (b *Backend) StopTimer(id uint64) bool {
	b.mux.Lock()
	handle, pending := b.pendingHandles[id]
	if pending {
		delete(b.pendingHandles, id)
	}
	b.mux.Unlock()

	if !pending {
		return false
	}
	b.scheduler.StopTimer(handle)
	return true
}

// Pending returns the number of timers waiting to fire.
func (b *Backend) Pending() int {
	return b.scheduler.Pending()
}

// Fired returns the number of timers this backend has fired so far.
func (b *Backend) Fired() uint64 {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.firedCount
}
