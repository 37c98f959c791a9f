package utils

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

// OverrideFlag points a flag at a test-specific value and restores the previous value when the
// test finishes. The registry constructors and the port read their knobs (tick interval, wheel
// size, variant) from flags at construction time, so tests override before constructing.
func OverrideFlag(t *testing.T, name, value string) {
	t.Helper()
	previous := flag.Lookup(name)
	require.NotNilf(t, previous, "No flag named %s is registered", name)

	previousValue := previous.Value.String()
	require.NoError(t, flag.Set(name, value))
	t.Cleanup(func() { require.NoError(t, flag.Set(name, previousValue)) })
}
