package escalation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rhamenator/antiscrape/internal/reqmeta"
	"github.com/rhamenator/antiscrape/internal/robots"
)

func TestRuleScoreKnownBadUA(t *testing.T) {
	meta := reqmeta.Metadata{UserAgent: "python-requests/2.31"}
	fv := reqmeta.FeatureVector{"req_freq_window": int64(1), "time_since_last_sec": -1.0}
	score := RuleScore(meta, fv, robots.Empty())
	require.InDelta(t, 0.7, score, 0.0001)
}

func TestRuleScoreEmptyUA(t *testing.T) {
	meta := reqmeta.Metadata{UserAgent: ""}
	fv := reqmeta.FeatureVector{"req_freq_window": int64(1), "time_since_last_sec": -1.0}
	score := RuleScore(meta, fv, robots.Empty())
	require.InDelta(t, 0.5, score, 0.0001)
}

func TestRuleScoreBenignCrawlerSuppressesBad(t *testing.T) {
	meta := reqmeta.Metadata{UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1)"}
	fv := reqmeta.FeatureVector{"req_freq_window": int64(1), "time_since_last_sec": -1.0}
	score := RuleScore(meta, fv, robots.Empty())
	require.Equal(t, 0.0, score)
}

func TestRuleScoreFrequencyBoundaries(t *testing.T) {
	meta := reqmeta.Metadata{UserAgent: "Mozilla/5.0"}

	fvAt30 := reqmeta.FeatureVector{"req_freq_window": int64(30), "time_since_last_sec": -1.0}
	require.Equal(t, 0.0, RuleScore(meta, fvAt30, robots.Empty()))

	fvAbove30 := reqmeta.FeatureVector{"req_freq_window": int64(31), "time_since_last_sec": -1.0}
	require.InDelta(t, 0.1, RuleScore(meta, fvAbove30, robots.Empty()), 0.0001)

	fvAt60 := reqmeta.FeatureVector{"req_freq_window": int64(60), "time_since_last_sec": -1.0}
	require.InDelta(t, 0.1, RuleScore(meta, fvAt60, robots.Empty()), 0.0001)

	fvAbove60 := reqmeta.FeatureVector{"req_freq_window": int64(61), "time_since_last_sec": -1.0}
	require.InDelta(t, 0.3, RuleScore(meta, fvAbove60, robots.Empty()), 0.0001)
}

func TestRuleScoreTimeSinceLastBoundary(t *testing.T) {
	meta := reqmeta.Metadata{UserAgent: "Mozilla/5.0"}

	fvAtBoundary := reqmeta.FeatureVector{"req_freq_window": int64(1), "time_since_last_sec": 0.3}
	require.Equal(t, 0.0, RuleScore(meta, fvAtBoundary, robots.Empty()))

	fvBelowBoundary := reqmeta.FeatureVector{"req_freq_window": int64(1), "time_since_last_sec": 0.0}
	require.InDelta(t, 0.2, RuleScore(meta, fvBelowBoundary, robots.Empty()), 0.0001)
}

func TestRuleScoreClamped(t *testing.T) {
	meta := reqmeta.Metadata{UserAgent: "sqlmap/1.0"}
	fv := reqmeta.FeatureVector{"req_freq_window": int64(100), "time_since_last_sec": 0.1, "path_disallowed": true}
	matcher, err := robots.Parse([]byte("User-agent: *\nDisallow: /admin\n"))
	require.NoError(t, err)
	meta.Path = "/admin/secret"
	score := RuleScore(meta, fv, matcher)
	require.Equal(t, 1.0, score)
}

func TestCombinedScoreNoModel(t *testing.T) {
	f := CombinedScore(0.6, nil, false, 0.3)
	require.InDelta(t, 0.6, f, 0.0001)
}

func TestCombinedScoreWithModel(t *testing.T) {
	model := 0.9
	f := CombinedScore(0.2, &model, false, 0.3)
	require.InDelta(t, 0.3*0.2+0.7*0.9, f, 0.0001)
}

func TestCombinedScoreReputationBonusClamped(t *testing.T) {
	f := CombinedScore(0.9, nil, true, 0.3)
	require.Equal(t, 1.0, f)
}
