package timer

import (
	"flag"
	"slices"

	"github.com/nobletooth/chime/pkg/utils"
)

var wheelSize = flag.Uint64("wheel_size", 100_000,
	"Number of buckets in the single-level timing wheel. Shorter delays are placed directly; "+
		"delays of at least this many ticks wait on the overflow list.")

var wheelInvariants = utils.NewInvariants("wheel")

// wheelTimer is a pending timer in the single-level wheel store. The deadline is only consulted
// for timers parked on the overflow list.
type wheelTimer struct {
	id       uint64
	deadline uint64 // Absolute tick at which the action fires.
	action   Action
}

// wheelStore is a single-level timing wheel: a circular array of buckets indexed by deadline
// modulo the wheel size. Insertion appends to one bucket in O(1); each tick advances the hand and
// fires the entire landing bucket.
//
// Delays of at least the wheel size can't be placed directly (their bucket would fire a whole
// revolution early), so they wait on an overflow list. Every time the hand wraps around to bucket
// zero, overflow timers due within the upcoming revolution move to their deadline's bucket.
type wheelStore struct {
	nextID    uint64
	size      uint64
	tickCount uint64 // Un-reduced tick counter; the hand is at tickCount % size.
	buckets   [][]*wheelTimer
	overflow  []*wheelTimer
	count     int // Pending timers across the buckets and the overflow list.
}

func newWheelStore() *wheelStore {
	size := *wheelSize
	if size == 0 {
		wheelInvariants.Raise("zero_wheel_size", "The wheel size flag must be positive.")
		size = 1
	}
	return &wheelStore{size: size, buckets: make([][]*wheelTimer, size)}
}

func (s *wheelStore) variant() string {
	return "wheel"
}

func (s *wheelStore) schedule(delaySeconds uint64, action Action) (Handle, error) {
	id := nextTimerID(&s.nextID)
	t := &wheelTimer{id: id, deadline: s.tickCount + delaySeconds, action: action}
	s.count++
	if delaySeconds >= s.size {
		s.overflow = append(s.overflow, t)
		return Handle{bucket: overflowBucket, id: id}, nil
	}
	idx := int(t.deadline % s.size)
	s.buckets[idx] = append(s.buckets[idx], t)
	return Handle{bucket: idx, id: id}, nil
}

func (s *wheelStore) cancel(h Handle) bool {
	if h.bucket == overflowBucket {
		// The timer may have been moved into a bucket by a drain since the handle was issued, so
		// fall back to scanning the whole wheel when the overflow list doesn't have it.
		for i, t := range s.overflow {
			if t.id == h.id {
				s.overflow = slices.Delete(s.overflow, i, i+1)
				s.count--
				return true
			}
		}
		for idx := range s.buckets {
			if s.removeFromBucket(idx, h.id) {
				return true
			}
		}
		return false
	}
	if h.bucket < 0 || h.bucket >= len(s.buckets) {
		return false
	}
	return s.removeFromBucket(h.bucket, h.id)
}

func (s *wheelStore) removeFromBucket(idx int, id uint64) bool {
	for i, t := range s.buckets[idx] {
		if t.id == id {
			s.buckets[idx] = slices.Delete(s.buckets[idx], i, i+1)
			s.count--
			return true
		}
	}
	return false
}

func (s *wheelStore) tick() {
	s.tickCount++
	if s.tickCount%s.size == 0 {
		s.drainOverflow()
	}
	idx := int(s.tickCount % s.size)
	expired := s.buckets[idx]
	s.buckets[idx] = nil
	s.count -= len(expired)
	for _, t := range expired {
		action := t.action
		t.action = nil
		fireAction(s.variant(), action)
	}
}

// drainOverflow runs when the hand wraps to bucket zero: overflow timers due within the next
// revolution move into their deadline's bucket. Timers scheduled from the overflow list can never
// be past due because their delay was at least one full revolution.
func (s *wheelStore) drainOverflow() {
	kept := s.overflow[:0]
	for _, t := range s.overflow {
		if t.deadline >= s.tickCount+s.size {
			kept = append(kept, t)
			continue
		}
		if t.deadline < s.tickCount {
			wheelInvariants.Raise("past_due_overflow",
				"An overflow timer was already past due at drain time.",
				"deadline", t.deadline, "tick", s.tickCount)
		}
		idx := int(t.deadline % s.size)
		s.buckets[idx] = append(s.buckets[idx], t)
	}
	for i := len(kept); i < len(s.overflow); i++ {
		s.overflow[i] = nil
	}
	s.overflow = kept
}

func (s *wheelStore) pending() int {
	return s.count
}
