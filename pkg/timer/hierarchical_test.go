package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertConservation checks that no cascade lost or duplicated a timer: the bucket population
// must always add up to the pending count.
func assertConservation(t *testing.T, s *hierarchicalStore) {
	t.Helper()
	total := 0
	for _, bucket := range s.secondsWheel {
		total += bucket.Len()
	}
	for _, bucket := range s.minutesWheel {
		total += bucket.Len()
	}
	for _, bucket := range s.hoursWheel {
		total += bucket.Len()
	}
	require.Equal(t, s.pending(), total, "Bucket population mismatch")
}

func TestTimeComponents(t *testing.T) {
	for _, testCase := range []struct {
		delay   uint64
		seconds uint32
		minutes uint32
		hours   uint32
	}{
		{delay: 1, seconds: 1},
		{delay: 59, seconds: 59},
		{delay: 60, minutes: 1},
		{delay: 61, seconds: 1, minutes: 1},
		{delay: 3599, seconds: 59, minutes: 59},
		{delay: 3600, hours: 1},
		{delay: 3661, seconds: 1, minutes: 1, hours: 1},
		{delay: 86399, seconds: 59, minutes: 59, hours: 23},
	} {
		seconds, minutes, hours := timeComponents(testCase.delay)
		assert.Equal(t, testCase.seconds, seconds, "seconds of %d", testCase.delay)
		assert.Equal(t, testCase.minutes, minutes, "minutes of %d", testCase.delay)
		assert.Equal(t, testCase.hours, hours, "hours of %d", testCase.delay)
	}
}

func TestHierarchicalStore_SecondsWheel(t *testing.T) {
	s := newHierarchicalStore()
	var fired []string
	scheduleRecorded(t, s, 1, "a", &fired)
	scheduleRecorded(t, s, 3, "b", &fired)

	s.tick()
	assert.Equal(t, []string{"a"}, fired)
	s.tick()
	s.tick()
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 0, s.pending())
	assertConservation(t, s)
}

func TestHierarchicalStore_MinuteCascade(t *testing.T) {
	s := newHierarchicalStore()
	var fired []string
	handle := scheduleRecorded(t, s, 61, "a", &fired)
	require.NotNil(t, handle.node)
	require.Equal(t, 1, s.minutesWheel[1].Len(), "A 61s timer starts on the minutes wheel")

	for range 59 {
		s.tick()
	}
	assert.Empty(t, fired, "Nothing may fire before the minute boundary")

	s.tick() // t=60: the minutes hand advances and demotes the timer.
	assert.Empty(t, fired)
	assert.Equal(t, 0, s.minutesWheel[1].Len())
	assert.Equal(t, 1, s.secondsWheel[1].Len(), "The demoted timer lands in seconds[1]")
	assertConservation(t, s)

	s.tick() // t=61.
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 0, s.pending())
}

func TestHierarchicalStore_ExactMinuteFiresOnCascade(t *testing.T) {
	s := newHierarchicalStore()
	var fired []string
	scheduleRecorded(t, s, 60, "a", &fired)

	for range 59 {
		s.tick()
	}
	assert.Empty(t, fired)
	s.tick() // t=60: no seconds residual, so the cascade fires it directly.
	assert.Equal(t, []string{"a"}, fired)
	assertConservation(t, s)
}

func TestHierarchicalStore_HourCascade(t *testing.T) {
	s := newHierarchicalStore()
	var fired []string
	scheduleRecorded(t, s, 3661, "a", &fired) // 1h 1m 1s.
	require.Equal(t, 1, s.hoursWheel[1].Len())

	for range 3600 {
		s.tick()
	}
	assert.Empty(t, fired)
	assert.Equal(t, 0, s.hoursWheel[1].Len(), "The hour cascade must drain its own bucket")
	assert.Equal(t, 1, s.minutesWheel[1].Len(), "An hour timer with minutes left demotes to minutes")
	assertConservation(t, s)

	for range 60 {
		s.tick()
	}
	assert.Empty(t, fired)
	assert.Equal(t, 1, s.secondsWheel[1].Len())
	assertConservation(t, s)

	s.tick() // t=3661.
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 0, s.pending())
}

func TestHierarchicalStore_ExactHourFiresOnCascade(t *testing.T) {
	s := newHierarchicalStore()
	var fired []string
	scheduleRecorded(t, s, 3600, "a", &fired)

	for range 3599 {
		s.tick()
	}
	assert.Empty(t, fired)
	s.tick() // t=3600.
	assert.Equal(t, []string{"a"}, fired)
}

func TestHierarchicalStore_HourTimerWithOnlySecondsResidual(t *testing.T) {
	s := newHierarchicalStore()
	var fired []string
	scheduleRecorded(t, s, 3605, "a", &fired) // 1h 0m 5s: skips the minutes wheel on demotion.

	for range 3600 {
		s.tick()
	}
	assert.Empty(t, fired)
	assert.Equal(t, 1, s.secondsWheel[5].Len(), "No minutes residual demotes straight to seconds")
	assertConservation(t, s)

	for range 5 {
		s.tick()
	}
	assert.Equal(t, []string{"a"}, fired)
}

func TestHierarchicalStore_Cancel(t *testing.T) {
	t.Run("Cancel on the minutes wheel", func(t *testing.T) {
		s := newHierarchicalStore()
		var fired []string
		handle := scheduleRecorded(t, s, 90, "a", &fired)

		assert.True(t, s.cancel(handle))
		assert.Equal(t, 0, s.pending())
		for range 120 {
			s.tick()
		}
		assert.Empty(t, fired)
		assertConservation(t, s)
	})

	t.Run("Cancel survives a demotion", func(t *testing.T) {
		s := newHierarchicalStore()
		var fired []string
		handle := scheduleRecorded(t, s, 90, "a", &fired)

		for range 60 {
			s.tick() // The timer is now on the seconds wheel.
		}
		require.Equal(t, 1, s.secondsWheel[30].Len())
		assert.True(t, s.cancel(handle), "The handle must stay valid across demotions")
		assert.Equal(t, 0, s.pending())

		for range 60 {
			s.tick()
		}
		assert.Empty(t, fired)
		assertConservation(t, s)
	})

	t.Run("Cancel after firing is a no-op", func(t *testing.T) {
		s := newHierarchicalStore()
		var fired []string
		handle := scheduleRecorded(t, s, 1, "a", &fired)
		s.tick()
		assert.Equal(t, []string{"a"}, fired)
		assert.False(t, s.cancel(handle))
		assert.False(t, s.cancel(Handle{}))
	})
}

func TestHierarchicalStore_RejectsDelaysBeyondRange(t *testing.T) {
	s := newHierarchicalStore()

	_, err := s.schedule(86400, func() {}) // Exactly one day.
	assert.ErrorIs(t, err, ErrDelayOutOfRange)

	_, err = s.schedule(86399, func() {}) // The maximum representable delay.
	assert.NoError(t, err)
	assert.Equal(t, 1, s.pending())
}

func TestHierarchicalStore_CascadeConservesTimers(t *testing.T) {
	s := newHierarchicalStore()
	var fired []string
	// A spread of delays across all three wheels.
	for _, delay := range []uint64{1, 59, 60, 61, 119, 120, 3599, 3600, 3601, 3660, 7199} {
		scheduleRecorded(t, s, delay, "x", &fired)
	}
	total := 11

	for range 7200 {
		s.tick()
		assertConservation(t, s)
	}
	assert.Equal(t, total, len(fired), "Every timer must fire exactly once")
	assert.Equal(t, 0, s.pending())
}
