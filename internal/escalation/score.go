package escalation

import (
	"github.com/rhamenator/antiscrape/internal/reqmeta"
	"github.com/rhamenator/antiscrape/internal/robots"
)

// RuleScore computes the §4.5.2 heuristic rule score in [0,1].
func RuleScore(meta reqmeta.Metadata, freq reqmeta.FeatureVector, robotsMatcher *robots.Matcher) float64 {
	ua := uaClassification(meta)
	normalizedPath := normalizePath(meta.Path)

	score := 0.0
	if ua.IsKnownBad && !ua.IsKnownBenignCrawler {
		score += 0.7
	}
	if ua.IsEmpty {
		score += 0.5
	}
	if robotsMatcher != nil && robotsMatcher.Disallowed(normalizedPath) && !ua.IsKnownBenignCrawler {
		score += 0.6
	}

	count, _ := freq["req_freq_window"].(int64)
	switch {
	case count > 60:
		score += 0.3
	case count > 30:
		score += 0.1
	}

	if ts, ok := freq["time_since_last_sec"].(float64); ok && ts >= 0 && ts < 0.3 {
		score += 0.2
	}

	if ua.IsKnownBenignCrawler {
		score -= 0.5
	}

	return clamp(score, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CombinedScore implements §4.5 step 5: blend rule and model scores,
// then apply the IP-reputation bonus if malicious.
func CombinedScore(rule float64, model *float64, reputationMalicious bool, bonus float64) float64 {
	f := rule
	if model != nil {
		f = 0.3*rule + 0.7*(*model)
	}
	if reputationMalicious {
		f = clamp(f+bonus, 0, 1)
	}
	return f
}
