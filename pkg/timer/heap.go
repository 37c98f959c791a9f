package timer

import "container/heap"

// heapTimer is a pending timer in the min-heap store.
type heapTimer struct {
	id       uint64
	deadline uint64 // Absolute tick at which the action fires.
	action   Action
}

// timerHeap implements container/heap.Interface ordered by deadline. The order between timers
// sharing a deadline is unspecified.
type timerHeap []*heapTimer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline < h[j].deadline }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)        { *h = append(*h, x.(*heapTimer)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// heapStore keeps pending timers in a binary min-heap keyed by their absolute deadline tick.
// Insertion is O(log n); each tick pops the root while it is due. Cancellation scans the heap for
// the id and removes that element, O(n).
type heapStore struct {
	nextID uint64
	now    uint64 // Monotonic tick counter; deadlines are expressed against it.
	timers timerHeap
}

func newHeapStore() *heapStore {
	return &heapStore{}
}

func (s *heapStore) variant() string {
	return "heap"
}

func (s *heapStore) schedule(delaySeconds uint64, action Action) (Handle, error) {
	id := nextTimerID(&s.nextID)
	heap.Push(&s.timers, &heapTimer{id: id, deadline: s.now + delaySeconds, action: action})
	return Handle{bucket: noBucket, id: id}, nil
}

func (s *heapStore) cancel(h Handle) bool {
	for i, t := range s.timers {
		if t.id == h.id {
			heap.Remove(&s.timers, i)
			return true
		}
	}
	return false
}

func (s *heapStore) tick() {
	s.now++
	for len(s.timers) > 0 && s.timers[0].deadline <= s.now {
		t := heap.Pop(&s.timers).(*heapTimer)
		action := t.action
		t.action = nil
		fireAction(s.variant(), action)
	}
}

func (s *heapStore) pending() int {
	return len(s.timers)
}
