package webhook

import "strings"

// severityTable maps a reason prefix to its alert severity level. Per
// DESIGN.md Open Question (c), matching is exact-prefix, not substring —
// the donor system's `any(p in reason for p in prefixes)` check is
// replaced with strings.HasPrefix.
var severityTable = []struct {
	prefix   string
	severity int
}{
	{"High Combined", 1},
	{"High Heuristic", 1},
	{"IP Reputation", 1},
	{"Local LLM", 2},
	{"Honeypot_Hit", 2},
	{"External API", 3},
}

// Severity returns the configured severity for reason, or 0 if no prefix
// matches (meaning: never gated open by a minimum-severity check of 1+).
func Severity(reason string) int {
	for _, e := range severityTable {
		if strings.HasPrefix(reason, e.prefix) {
			return e.severity
		}
	}
	return 0
}

// AutoBlockReasonPrefixes are the glossary's auto-block reason prefixes;
// a reason matching any of these causes the Webhook Sink to write a
// blocklist entry.
var AutoBlockReasonPrefixes = []string{
	"High Combined Score",
	"Local LLM Classification",
	"External API Classification",
	"High Heuristic Score",
	"Honeypot_Hit",
	"IP Reputation Malicious",
}

// IsAutoBlockReason reports whether reason matches one of the glossary's
// auto-block reason prefixes, by exact prefix match.
func IsAutoBlockReason(reason string) bool {
	for _, p := range AutoBlockReasonPrefixes {
		if strings.HasPrefix(reason, p) {
			return true
		}
	}
	return false
}
