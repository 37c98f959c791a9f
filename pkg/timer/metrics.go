package timer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-variant counters over the timer life cycle. A timer shows up in exactly one of fired or
// cancelled; pending tracks the live population.
var (
	startedMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chime_timers_started_total",
		Help: "The total number of timers registered.",
	}, []string{"variant"})
	firedMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chime_timers_fired_total",
		Help: "The total number of timer actions invoked.",
	}, []string{"variant"})
	cancelledMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chime_timers_cancelled_total",
		Help: "The total number of timers cancelled before firing.",
	}, []string{"variant"})
	actionPanicsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chime_timer_action_panics_total",
		Help: "The total number of timer actions that panicked while running.",
	}, []string{"variant"})
	pendingMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chime_timers_pending",
		Help: "The number of timers currently waiting to fire.",
	}, []string{"variant"})
)
