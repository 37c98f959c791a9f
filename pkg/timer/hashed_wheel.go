package timer

import "math"

// hashedWheelBuckets is the wheel span; the bucket index is the low 8 bits of a tick count, so
// the span is fixed by the bit split and is not a tunable.
const hashedWheelBuckets = 256

func lowest8Bits(n uint32) uint32 {
	return n & 0xFF
}

func highest24Bits(n uint32) uint32 {
	return n & 0xFFFFFF00
}

// hashedWheelTimer is a pending timer in the hashed-wheel store.
type hashedWheelTimer struct {
	id uint64
	// rounds is the high 24 bits of the timer's absolute expiry tick. It counts the full wheel
	// revolutions that must pass before the timer is due, and it is what orders the bucket.
	rounds uint32
	action Action
}

// hashedWheelStore hashes timers into 256 buckets by the low 8 bits of their expiry tick and
// keeps each bucket sorted by the remaining high 24 bits (the round counter). Expiration walks
// the landing bucket from its head and stops at the first timer whose round counter isn't the
// current one, so a tick costs O(expired) rather than O(bucket). Memory stays O(W + n) while
// delays range up to 2^32 seconds.
type hashedWheelStore struct {
	nextID uint64
	// tickCount is the un-reduced tick counter. The bucket index reduces it mod 256 and the round
	// counter takes the high 24 bits of its low 32; reducing before the extraction would pin every
	// round counter at zero and strand any timer longer than one revolution.
	tickCount uint64
	buckets   []*linkedList[*hashedWheelTimer]
	count     int
}

func newHashedWheelStore() *hashedWheelStore {
	s := &hashedWheelStore{buckets: make([]*linkedList[*hashedWheelTimer], hashedWheelBuckets)}
	for i := range s.buckets {
		s.buckets[i] = newLinkedList[*hashedWheelTimer]()
	}
	return s
}

func (s *hashedWheelStore) variant() string {
	return "hashed_wheel"
}

func (s *hashedWheelStore) schedule(delaySeconds uint64, action Action) (Handle, error) {
	if delaySeconds > math.MaxUint32 {
		return Handle{}, ErrDelayOutOfRange
	}
	id := nextTimerID(&s.nextID)
	delay := uint32(delaySeconds)
	t := &hashedWheelTimer{
		id:     id,
		rounds: highest24Bits(uint32(s.tickCount + uint64(delay))),
		action: action,
	}
	idx := int((s.tickCount + uint64(lowest8Bits(delay))) % hashedWheelBuckets)
	s.insertSorted(s.buckets[idx], t)
	s.count++
	return Handle{bucket: idx, id: id}, nil
}

// insertSorted places the timer so the bucket stays in non-decreasing round-counter order: walk
// from the head past every smaller round counter and insert before the first node that is equal
// or greater. Timers sharing a round counter therefore form one contiguous run.
func (s *hashedWheelStore) insertSorted(bucket *linkedList[*hashedWheelTimer], t *hashedWheelTimer) {
	for node := bucket.Front(); node != nil; node = node.Next() {
		if node.Value.rounds >= t.rounds {
			bucket.InsertBefore(node, t)
			return
		}
	}
	bucket.PushBack(t)
}

func (s *hashedWheelStore) cancel(h Handle) bool {
	if h.bucket < 0 || h.bucket >= len(s.buckets) {
		return false
	}
	bucket := s.buckets[h.bucket]
	for node := bucket.Front(); node != nil; node = node.Next() {
		if node.Value.id == h.id {
			bucket.Remove(node)
			s.count--
			return true
		}
	}
	return false
}

func (s *hashedWheelStore) tick() {
	s.tickCount++
	idx := int(s.tickCount % hashedWheelBuckets)
	currentRounds := highest24Bits(uint32(s.tickCount))

	bucket := s.buckets[idx]
	for node := bucket.Front(); node != nil; {
		t := node.Value
		if t.rounds != currentRounds {
			// The bucket is sorted, so everything from here on fires on a later revolution.
			break
		}
		next := node.Next()
		bucket.Remove(node)
		s.count--
		action := t.action
		t.action = nil
		fireAction(s.variant(), action)
		node = next
	}
}

func (s *hashedWheelStore) pending() int {
	return s.count
}
