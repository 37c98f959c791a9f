// Build identity injected through ldflags, and the test mode switch that makes invariant
// violations panic. CAUTION: the variable names here are link targets; renaming them breaks the
// -X flags in the build.

package utils

import (
	"log/slog"
	"strconv"
	"time"
)

var (
	TestMode   string // Should be true when running tests.
	IsTestMode bool
	Version    string
	Commit     string
	BuildTime  string
	StartTime  time.Time
)

// orUnknown substitutes a marker for build values the linker didn't fill in.
func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func init() {
	StartTime = time.Now()
	Version = orUnknown(Version)
	Commit = orUnknown(Commit)
	BuildTime = orUnknown(BuildTime)

	if len(TestMode) > 0 {
		isTestMode, err := strconv.ParseBool(TestMode)
		if err != nil {
			slog.Warn("Failed to parse TestMode build flag, defaulting to false", "error", err)
		}
		IsTestMode = isTestMode
	}
}

// BuildAttrs returns the build identity as key/value pairs ready for structured logging.
func BuildAttrs() []any {
	return []any{"version", Version, "commit", Commit, "build", BuildTime}
}
