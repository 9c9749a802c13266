package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeverityExactPrefixMatch(t *testing.T) {
	require.Equal(t, 1, Severity("High Combined Score (0.91)"))
	require.Equal(t, 1, Severity("High Heuristic Score"))
	require.Equal(t, 1, Severity("IP Reputation Malicious"))
	require.Equal(t, 2, Severity("Local LLM Classification"))
	require.Equal(t, 2, Severity("Honeypot_Hit excessive hops"))
	require.Equal(t, 3, Severity("External API Classification"))
}

func TestSeverityNoSubstringMatch(t *testing.T) {
	// "something High Combined inside" does not start with the prefix,
	// so the exact-prefix redesign must not match it.
	require.Equal(t, 0, Severity("something High Combined inside"))
}

func TestSeverityUnknownReason(t *testing.T) {
	require.Equal(t, 0, Severity("totally unrecognised reason"))
}

func TestIsAutoBlockReasonExactPrefix(t *testing.T) {
	require.True(t, IsAutoBlockReason("High Combined Score (0.95)"))
	require.True(t, IsAutoBlockReason("Honeypot_Hit excessive hops"))
	require.False(t, IsAutoBlockReason("a High Combined Score preceded by text"))
	require.False(t, IsAutoBlockReason("Low Combined Score"))
}
