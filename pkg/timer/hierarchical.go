package timer

const (
	secondsInMinute = 60
	minutesInHour   = 60
	hoursInDay      = 24
	// maxHierarchicalDelaySeconds is one day, the exclusive upper bound on delays: the three
	// residual components can represent at most one tick short of it.
	maxHierarchicalDelaySeconds = hoursInDay * minutesInHour * secondsInMinute
)

// hierarchicalTimer is a pending timer in the hierarchical store. The residual components place
// it: the coarsest non-zero component names the wheel holding it, and demotion zeroes the
// component of the wheel being left so cancellation can always locate the timer.
type hierarchicalTimer struct {
	seconds uint32
	minutes uint32
	hours   uint32
	action  Action
}

// hierarchicalStore cascades three wheels the way an analog clock does: sixty second buckets,
// sixty minute buckets, and twenty-four hour buckets. A timer lives in the wheel of its coarsest
// non-zero residual and moves to the wheel of its next non-zero residual when that wheel's hand
// reaches its bucket, until the seconds hand reaches it.
//
// Buckets are indexed by the residual itself, not by hand plus residual. A timer registered while
// a hand is away from zero therefore fires when that hand next reaches its residual index, which
// can be earlier or later than delaySeconds ticks after registration.
//
// Handles are direct node references, so cancellation is O(1). Nodes keep their identity across
// demotions (they are re-linked, not reallocated), which keeps outstanding handles valid.
type hierarchicalStore struct {
	second uint32 // Hand over secondsWheel.
	minute uint32 // Hand over minutesWheel.
	hour   uint32 // Hand over hoursWheel.

	secondsWheel [secondsInMinute]*linkedList[*hierarchicalTimer]
	minutesWheel [minutesInHour]*linkedList[*hierarchicalTimer]
	hoursWheel   [hoursInDay]*linkedList[*hierarchicalTimer]
	count        int
}

func newHierarchicalStore() *hierarchicalStore {
	s := &hierarchicalStore{}
	for i := range s.secondsWheel {
		s.secondsWheel[i] = newLinkedList[*hierarchicalTimer]()
	}
	for i := range s.minutesWheel {
		s.minutesWheel[i] = newLinkedList[*hierarchicalTimer]()
	}
	for i := range s.hoursWheel {
		s.hoursWheel[i] = newLinkedList[*hierarchicalTimer]()
	}
	return s
}

func (s *hierarchicalStore) variant() string {
	return "hierarchical"
}

// timeComponents splits a delay in seconds into its (seconds, minutes, hours) residuals.
func timeComponents(secs uint64) (seconds, minutes, hours uint32) {
	hours = uint32(secs / 3600)
	minutes = uint32((secs % 3600) / 60)
	seconds = uint32(secs % 60)
	return seconds, minutes, hours
}

func (s *hierarchicalStore) schedule(delaySeconds uint64, action Action) (Handle, error) {
	if delaySeconds >= maxHierarchicalDelaySeconds {
		return Handle{}, ErrDelayOutOfRange
	}
	seconds, minutes, hours := timeComponents(delaySeconds)
	t := &hierarchicalTimer{seconds: seconds, minutes: minutes, hours: hours, action: action}

	var node *linkedListNode[*hierarchicalTimer]
	switch {
	case hours > 0:
		node = s.hoursWheel[hours].PushBack(t)
	case minutes > 0:
		node = s.minutesWheel[minutes].PushBack(t)
	default:
		node = s.secondsWheel[seconds].PushBack(t)
	}
	s.count++
	return Handle{bucket: noBucket, node: node}, nil
}

// bucketOf returns the list currently holding the timer, derived from its residuals.
func (s *hierarchicalStore) bucketOf(t *hierarchicalTimer) *linkedList[*hierarchicalTimer] {
	switch {
	case t.hours > 0:
		return s.hoursWheel[t.hours]
	case t.minutes > 0:
		return s.minutesWheel[t.minutes]
	default:
		return s.secondsWheel[t.seconds]
	}
}

func (s *hierarchicalStore) cancel(h Handle) bool {
	if h.node == nil {
		return false
	}
	// Remove refuses nodes that already left their list, so fired or cancelled handles no-op.
	if !s.bucketOf(h.node.Value).Remove(h.node) {
		return false
	}
	s.count--
	return true
}

func (s *hierarchicalStore) tick() {
	// The seconds hand advances every tick and the bucket it lands on fires wholesale.
	s.second = (s.second + 1) % secondsInMinute
	bucket := s.secondsWheel[s.second]
	for node := bucket.Front(); node != nil; {
		next := node.Next()
		bucket.Remove(node)
		s.count--
		t := node.Value
		action := t.action
		t.action = nil
		fireAction(s.variant(), action)
		node = next
	}
	if s.second != 0 {
		return
	}

	// The seconds hand wrapped: one minute passed. Timers in the landing minute bucket either
	// fire (no finer residual left) or demote into the seconds wheel.
	s.minute = (s.minute + 1) % minutesInHour
	bucket = s.minutesWheel[s.minute]
	for node := bucket.Front(); node != nil; {
		next := node.Next()
		bucket.Remove(node)
		t := node.Value
		if t.seconds == 0 {
			s.count--
			action := t.action
			t.action = nil
			fireAction(s.variant(), action)
		} else {
			t.minutes = 0
			s.secondsWheel[t.seconds].PushBackNode(node)
		}
		node = next
	}
	if s.minute != 0 {
		return
	}

	// The minutes hand wrapped too: one hour passed. Hour-bucket timers fire or demote into the
	// wheel of their coarsest remaining residual.
	s.hour = (s.hour + 1) % hoursInDay
	bucket = s.hoursWheel[s.hour]
	for node := bucket.Front(); node != nil; {
		next := node.Next()
		bucket.Remove(node)
		t := node.Value
		switch {
		case t.minutes == 0 && t.seconds == 0:
			s.count--
			action := t.action
			t.action = nil
			fireAction(s.variant(), action)
		case t.minutes > 0:
			t.hours = 0
			s.minutesWheel[t.minutes].PushBackNode(node)
		default:
			t.hours = 0
			s.secondsWheel[t.seconds].PushBackNode(node)
		}
		node = next
	}
}

func (s *hierarchicalStore) pending() int {
	return s.count
}
