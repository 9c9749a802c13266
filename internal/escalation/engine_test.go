package escalation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rhamenator/antiscrape/internal/config"
	"github.com/rhamenator/antiscrape/internal/metrics"
	"github.com/rhamenator/antiscrape/internal/reqmeta"
	"github.com/rhamenator/antiscrape/internal/robots"
	"github.com/rhamenator/antiscrape/internal/store"
)

type fakeFreqTracker struct {
	reading store.FreqReading
}

func (f *fakeFreqTracker) Record(ctx context.Context, ip string, window, margin time.Duration) (store.FreqReading, error) {
	return f.reading, nil
}

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Escalation.ThresholdHigh = 0.8
	cfg.Escalation.CaptchaScoreLow = 0.2
	cfg.Escalation.CaptchaScoreHigh = 0.5
	cfg.Redis.FreqWindowSec = 300
	cfg.Redis.FreqMarginSec = 30
	return cfg
}

func TestEngineHighScoreAutoBlocks(t *testing.T) {
	cfg := baseConfig()
	engine := NewEngine(cfg, &fakeFreqTracker{reading: store.FreqReading{Count: 1, TimeSinceLast: -1}}, robots.Empty(), nil, nil, nil, nil, metrics.NewRegistry())

	meta := reqmeta.Metadata{IP: "1.2.3.4", UserAgent: "sqlmap/1.0", Path: "/", Method: "GET"}
	verdict := engine.Evaluate(context.Background(), meta)

	require.NotNil(t, verdict.IsBot)
	require.True(t, *verdict.IsBot)
	require.Equal(t, reqmeta.ActionBlock, verdict.Action)
	require.Contains(t, verdict.Reason, "High Combined Score")
}

func TestEngineLowScoreAccepted(t *testing.T) {
	cfg := baseConfig()
	engine := NewEngine(cfg, &fakeFreqTracker{reading: store.FreqReading{Count: 1, TimeSinceLast: -1}}, robots.Empty(), nil, nil, nil, nil, metrics.NewRegistry())

	meta := reqmeta.Metadata{IP: "1.2.3.4", UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0 Safari/537.36", Path: "/", Method: "GET"}
	verdict := engine.Evaluate(context.Background(), meta)

	require.NotNil(t, verdict.IsBot)
	require.False(t, *verdict.IsBot)
	require.Equal(t, reqmeta.ActionNone, verdict.Action)
}

func TestEngineMiddleBandTriggersCaptcha(t *testing.T) {
	cfg := baseConfig()
	cfg.Escalation.EnableCaptchaTrigger = true
	engine := NewEngine(cfg, &fakeFreqTracker{reading: store.FreqReading{Count: 61, TimeSinceLast: -1}}, robots.Empty(), nil, nil, nil, nil, metrics.NewRegistry())

	meta := reqmeta.Metadata{IP: "1.2.3.4", UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0 Safari/537.36", Path: "/", Method: "GET"}
	verdict := engine.Evaluate(context.Background(), meta)

	require.Equal(t, reqmeta.ActionCaptcha, verdict.Action)
	require.Nil(t, verdict.IsBot)
}

func TestEngineMiddleBandFallsThroughToLocalLLM(t *testing.T) {
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isBot := true
		json.NewEncoder(w).Encode(map[string]any{"is_bot": &isBot})
	}))
	defer llmServer.Close()

	cfg := baseConfig()
	cfg.Escalation.EnableCaptchaTrigger = false
	localLLM := NewClassifier(llmServer.URL, 2*time.Second, "")
	engine := NewEngine(cfg, &fakeFreqTracker{reading: store.FreqReading{Count: 31, TimeSinceLast: -1}}, robots.Empty(), nil, nil, localLLM, nil, metrics.NewRegistry())

	meta := reqmeta.Metadata{IP: "1.2.3.4", UserAgent: "", Path: "/", Method: "GET"}
	verdict := engine.Evaluate(context.Background(), meta)

	require.NotNil(t, verdict.IsBot)
	require.True(t, *verdict.IsBot)
	require.Equal(t, "Local LLM Classification", verdict.Reason)
	require.Equal(t, reqmeta.ActionBlock, verdict.Action)
}

func TestEngineLLMInconclusiveFallsThroughToExternalAPI(t *testing.T) {
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer llmServer.Close()
	externalServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isBot := true
		json.NewEncoder(w).Encode(map[string]any{"is_bot": &isBot})
	}))
	defer externalServer.Close()

	cfg := baseConfig()
	cfg.Escalation.EnableCaptchaTrigger = false
	localLLM := NewClassifier(llmServer.URL, 2*time.Second, "")
	externalAPI := NewClassifier(externalServer.URL, 2*time.Second, "key")
	engine := NewEngine(cfg, &fakeFreqTracker{reading: store.FreqReading{Count: 31, TimeSinceLast: -1}}, robots.Empty(), nil, nil, localLLM, externalAPI, metrics.NewRegistry())

	meta := reqmeta.Metadata{IP: "1.2.3.4", UserAgent: "", Path: "/", Method: "GET"}
	verdict := engine.Evaluate(context.Background(), meta)

	require.NotNil(t, verdict.IsBot)
	require.True(t, *verdict.IsBot)
	require.Equal(t, "External API Classification", verdict.Reason)
}

func TestEngineStillInconclusiveReturnsUnknown(t *testing.T) {
	cfg := baseConfig()
	cfg.Escalation.EnableCaptchaTrigger = false
	engine := NewEngine(cfg, &fakeFreqTracker{reading: store.FreqReading{Count: 31, TimeSinceLast: -1}}, robots.Empty(), nil, nil, nil, nil, metrics.NewRegistry())

	meta := reqmeta.Metadata{IP: "1.2.3.4", UserAgent: "", Path: "/", Method: "GET"}
	verdict := engine.Evaluate(context.Background(), meta)

	require.Nil(t, verdict.IsBot)
	require.Equal(t, reqmeta.ActionNone, verdict.Action)
}
