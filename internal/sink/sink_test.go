package sink

import (
	"bytes"
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
	"github.com/rhamenator/antiscrape/internal/store"
	"github.com/rhamenator/antiscrape/internal/webhook"
)

type recordingBlocklist struct {
	writes int
	ips    []string
}

func (r *recordingBlocklist) Write(ctx context.Context, ip string, entry store.BlockEntry, ttl time.Duration) (bool, error) {
	r.writes++
	r.ips = append(r.ips, ip)
	return true, nil
}
func (r *recordingBlocklist) Exists(ctx context.Context, ip string) (bool, error) { return false, nil }
func (r *recordingBlocklist) TTL(ctx context.Context, ip string) (time.Duration, error) {
	return 0, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Redis.BlocklistTTLSec = 60
	cfg.Webhook.CommunityReportTimeoutSec = 1
	return cfg
}

func postAnalyze(t *testing.T, handler http.Handler, req reqmeta.AnalyzeRequest) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httpReq)
	return rec
}

func TestAnalyzeUnknownIPIsSkipped(t *testing.T) {
	cfg := testConfig()
	blocklist := &recordingBlocklist{}
	dispatcher := webhook.NewDispatcher(webhook.NoopTransport{}, 1, 10, 1, 10, metrics.NewRegistry(), nil)
	defer dispatcher.Shutdown()

	s := NewServer(cfg, blocklist, dispatcher, metrics.NewRegistry(), nil, nil)
	rec := postAnalyze(t, s.Router(), reqmeta.AnalyzeRequest{
		EventType: "escalation_verdict",
		Reason:    "High Combined Score (0.9)",
		Details:   reqmeta.AnalyzeDetails{IP: ""},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp reqmeta.AnalyzeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "blocklist_skipped_unknown_ip", resp.ActionTaken)
	require.Equal(t, 0, blocklist.writes)
}

func TestAnalyzeAutoBlockReasonWritesBlocklist(t *testing.T) {
	cfg := testConfig()
	blocklist := &recordingBlocklist{}
	dispatcher := webhook.NewDispatcher(webhook.NoopTransport{}, 1, 10, 1, 10, metrics.NewRegistry(), nil)
	defer dispatcher.Shutdown()

	s := NewServer(cfg, blocklist, dispatcher, metrics.NewRegistry(), nil, nil)
	rec := postAnalyze(t, s.Router(), reqmeta.AnalyzeRequest{
		EventType: "escalation_verdict",
		Reason:    "High Combined Score (0.91)",
		Details:   reqmeta.AnalyzeDetails{IP: "198.51.100.1", UserAgent: "sqlmap/1.0"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp reqmeta.AnalyzeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "blocked", resp.ActionTaken)
	require.Equal(t, "198.51.100.1", resp.IPProcessed)
	require.Equal(t, 1, blocklist.writes)
}

func TestAnalyzeNonAutoBlockReasonDoesNotBlock(t *testing.T) {
	cfg := testConfig()
	blocklist := &recordingBlocklist{}
	dispatcher := webhook.NewDispatcher(webhook.NoopTransport{}, 1, 10, 1, 10, metrics.NewRegistry(), nil)
	defer dispatcher.Shutdown()

	s := NewServer(cfg, blocklist, dispatcher, metrics.NewRegistry(), nil, nil)
	rec := postAnalyze(t, s.Router(), reqmeta.AnalyzeRequest{
		EventType: "escalation_verdict",
		Reason:    "Low Combined Score",
		Details:   reqmeta.AnalyzeDetails{IP: "198.51.100.1"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, blocklist.writes)
}

func TestAnalyzeMalformedBodyReturns422(t *testing.T) {
	cfg := testConfig()
	dispatcher := webhook.NewDispatcher(webhook.NoopTransport{}, 1, 10, 1, 10, metrics.NewRegistry(), nil)
	defer dispatcher.Shutdown()

	s := NewServer(cfg, &recordingBlocklist{}, dispatcher, metrics.NewRegistry(), nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
