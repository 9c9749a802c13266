package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/rhamenator/antiscrape/internal/config"
	"github.com/rhamenator/antiscrape/internal/metrics"
	"github.com/rhamenator/antiscrape/internal/reqmeta"
	"github.com/rhamenator/antiscrape/internal/robots"
	"github.com/rhamenator/antiscrape/internal/store"
)

// Engine runs the full §4.5 pipeline for one request.
type Engine struct {
	cfg         *config.Config
	freq        store.FrequencyTracker
	robots      *robots.Matcher
	model       *Model
	reputation  *ReputationLookup
	localLLM    *Classifier
	externalAPI *Classifier
	registry    *metrics.Registry
}

func NewEngine(cfg *config.Config, freq store.FrequencyTracker, robotsMatcher *robots.Matcher, model *Model, reputation *ReputationLookup, localLLM, externalAPI *Classifier, registry *metrics.Registry) *Engine {
	return &Engine{
		cfg:         cfg,
		freq:        freq,
		robots:      robotsMatcher,
		model:       model,
		reputation:  reputation,
		localLLM:    localLLM,
		externalAPI: externalAPI,
		registry:    registry,
	}
}

// Evaluate runs steps 1-7 of §4.5 for meta and returns the verdict.
func (e *Engine) Evaluate(ctx context.Context, meta reqmeta.Metadata) reqmeta.Verdict {
	start := time.Now()
	defer func() {
		metrics.EscalationScoreDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	window := time.Duration(e.cfg.Redis.FreqWindowSec) * time.Second
	margin := time.Duration(e.cfg.Redis.FreqMarginSec) * time.Second
	var freqReading store.FreqReading
	if e.freq != nil {
		reading, err := e.freq.Record(ctx, meta.IP, window, margin)
		if err == nil {
			freqReading = reading
		} else {
			e.registry.Increment("escalation_freq_errors", 1)
		}
	}

	fv := ExtractFeatures(meta, freqReading, e.robots)
	rule := RuleScore(meta, fv, e.robots)

	var modelScorePtr *float64
	if e.model != nil {
		s := e.model.Score(fv)
		modelScorePtr = &s
	}

	malicious := false
	if e.cfg.Reputation.Enabled && e.reputation != nil {
		mal, _, found := e.reputation.Lookup(ctx, meta.IP)
		if found {
			malicious = mal
		}
	}

	f := CombinedScore(rule, modelScorePtr, malicious, e.cfg.Reputation.MaliciousBonus)

	return e.decide(ctx, meta, fv, f)
}

// decide runs the strictly sequential decision ladder of §4.5 step 6.
func (e *Engine) decide(ctx context.Context, meta reqmeta.Metadata, fv reqmeta.FeatureVector, f float64) reqmeta.Verdict {
	bot, human := true, false

	if f >= e.cfg.Escalation.ThresholdHigh {
		e.registry.Increment("verdict_bot_high_combined", 1)
		return reqmeta.Verdict{IsBot: &bot, Score: f, Reason: fmt.Sprintf("High Combined Score (%.3f)", f), Action: reqmeta.ActionBlock}
	}
	if f < e.cfg.Escalation.CaptchaScoreLow {
		e.registry.Increment("verdict_human_low_score", 1)
		return reqmeta.Verdict{IsBot: &human, Score: f, Reason: "Low Combined Score", Action: reqmeta.ActionNone}
	}
	if f < e.cfg.Escalation.CaptchaScoreHigh && e.cfg.Escalation.EnableCaptchaTrigger {
		e.registry.Increment("verdict_unknown_captcha", 1)
		return reqmeta.Verdict{IsBot: nil, Score: f, Reason: "Middle Band CAPTCHA", Action: reqmeta.ActionCaptcha}
	}

	if e.localLLM != nil {
		switch e.localLLM.Classify(ctx, meta, fv) {
		case OutcomeBot:
			e.registry.Increment("verdict_bot_local_llm", 1)
			return reqmeta.Verdict{IsBot: &bot, Score: f, Reason: "Local LLM Classification", Action: reqmeta.ActionBlock}
		case OutcomeHuman:
			e.registry.Increment("verdict_human_local_llm", 1)
			return reqmeta.Verdict{IsBot: &human, Score: f, Reason: "Local LLM Classification (human)", Action: reqmeta.ActionNone}
		case OutcomeInconclusive:
			e.registry.Increment("local_llm_inconclusive", 1)
		}
	}

	if e.externalAPI != nil {
		switch e.externalAPI.Classify(ctx, meta, fv) {
		case OutcomeBot:
			e.registry.Increment("verdict_bot_external_api", 1)
			return reqmeta.Verdict{IsBot: &bot, Score: f, Reason: "External API Classification", Action: reqmeta.ActionBlock}
		case OutcomeHuman:
			e.registry.Increment("verdict_human_external_api", 1)
			return reqmeta.Verdict{IsBot: &human, Score: f, Reason: "External API Classification (human)", Action: reqmeta.ActionNone}
		case OutcomeInconclusive:
			e.registry.Increment("external_api_inconclusive", 1)
		}
	}

	e.registry.Increment("verdict_unknown", 1)
	return reqmeta.Verdict{IsBot: nil, Score: f, Reason: "Inconclusive", Action: reqmeta.ActionNone}
}
