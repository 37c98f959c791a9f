// Package utils carries the process-wide plumbing of the timer service: logging setup, build
// identity, invariant reporting, and test helpers.
//
// Invariants are conditions that must hold or there is a bug in chime itself: a wheel bucket the
// cascade should have drained, a pending count that disagrees with the bucket population, a
// handle pointing at a store that never issued it. Think of what you'd `panic()` on, except a
// timer service shouldn't die because one bucket went bad: a violation is logged, a monitoring
// counter is incremented to trigger an alert, and the caller still handles the erroneous case
// (early return, clamp, skip). Conditions driven by callers are not invariants; a too-long delay
// or a stale handle is an expected input, not a bug.

package utils

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

var invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chime_invariants_total",
	Help: "The total number of invariant violations",
}, []string{
	"module", // The module in which this invariant occurred.
	"type",   // The type of the invariant that occurred.
})

// Invariants reports violations on behalf of one module (a store variant, the registry, the
// sharded facade, logging), so every violation it raises is tagged and counted under that module's name.
type Invariants struct {
	module string
}

// NewInvariants creates a reporter for the given module name.
func NewInvariants(module string) Invariants {
	return Invariants{module: module}
}

// Raise records an invariant violation: it increments the violation counter, logs the condition
// with the given context, and panics in test builds so violated assumptions fail loudly there.
func (i Invariants) Raise(violation, msg string, args ...any) {
	invariantsMetric.WithLabelValues(i.module, violation).Inc()
	slog.With("invariant", violation, "module", i.module).Error(msg, args...)
	if IsTestMode {
		panic("invariant violated: " + i.module + "/" + violation)
	}
}

// Count returns how many times the given violation has been raised by this module.
func (i Invariants) Count(violation string) int {
	var metric = &promclient.Metric{}
	if err := invariantsMetric.WithLabelValues(i.module, violation).Write(metric); err != nil {
		slog.Error(err.Error())
		return 0
	}
	return int(metric.Counter.GetValue())
}
