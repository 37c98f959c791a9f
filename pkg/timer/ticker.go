package timer

import (
	"flag"
	"time"
	"weak"
)

var tickInterval = flag.Duration("tick_interval", time.Second,
	"Period between bookkeeping ticks of a timer registry. Delays are measured in ticks, so "+
		"changing this rescales every delay unit.")

// runTicker drives a registry's expiration step once per interval until the registry is garbage
// collected. It sleeps before the first tick so nothing can fire at construction time.
//
// The loop holds only a weak reference between ticks. Once callers drop their last reference the
// upgrade fails and the goroutine exits; that failed upgrade is the registry's only teardown
// signal.
func runTicker(registry weak.Pointer[Registry], interval time.Duration) {
	for {
		time.Sleep(interval)
		strong := registry.Value()
		if strong == nil {
			return
		}
		strong.expireTimers()
		// The strong reference goes out of scope here; the next sleep holds only the weak one.
	}
}
