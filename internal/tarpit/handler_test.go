package tarpit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rhamenator/antiscrape/internal/config"
	"github.com/rhamenator/antiscrape/internal/markov"
	"github.com/rhamenator/antiscrape/internal/metrics"
	"github.com/rhamenator/antiscrape/internal/store"
)

// fixedHopCounter reports an ever-increasing hop count, letting tests
// drive the Tarpit Engine's self-block path deterministically.
type fixedHopCounter struct {
	count int64
}

func (f *fixedHopCounter) Hit(ctx context.Context, ip string, window time.Duration) (int64, error) {
	f.count++
	return f.count, nil
}

// emptySource never offers a transition, so Render/RenderAsset fall back
// to their static placeholders immediately.
type emptySource struct{}

func (emptySource) Transitions(ctx context.Context, p1, p2 int64) ([]markov.Transition, error) {
	return nil, nil
}
func (emptySource) Word(ctx context.Context, id int64) (string, error) { return "", nil }

type recordingBlocklist struct {
	writes int
}

func (r *recordingBlocklist) Write(ctx context.Context, ip string, entry store.BlockEntry, ttl time.Duration) (bool, error) {
	r.writes++
	return true, nil
}
func (r *recordingBlocklist) Exists(ctx context.Context, ip string) (bool, error) { return false, nil }
func (r *recordingBlocklist) TTL(ctx context.Context, ip string) (time.Duration, error) {
	return 0, nil
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tarpit/x", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	req.RemoteAddr = "10.0.0.2:1234"
	require.Equal(t, "203.0.113.5", clientIP(req))
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tarpit/x", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	require.Equal(t, "10.0.0.2", clientIP(req))
}

func TestNormalizePath(t *testing.T) {
	require.Equal(t, "/", normalizePath(""))
	require.Equal(t, "/a/b", normalizePath("a/b"))
	require.Equal(t, "/a/b", normalizePath("/a/b"))
}

func TestExtOf(t *testing.T) {
	require.Equal(t, "html", extOf("/tarpit/assets/foo"))
	require.Equal(t, "js", extOf("/tarpit/assets/foo.js"))
}

func TestLineDelayWithinBounds(t *testing.T) {
	cfg := &config.Config{}
	cfg.Tarpit.MinDelaySec = 0.6
	cfg.Tarpit.MaxDelaySec = 2.5

	gen := markov.NewGenerator(emptySource{}, "seed")
	rng := gen.SeedRand("/tarpit/x")
	for i := 0; i < 50; i++ {
		d := lineDelay(rng, cfg.Tarpit.MinDelaySec, cfg.Tarpit.MaxDelaySec)
		require.GreaterOrEqual(t, d, time.Duration(cfg.Tarpit.MinDelaySec*float64(time.Second)))
		require.LessOrEqual(t, d, time.Duration(cfg.Tarpit.MaxDelaySec*float64(time.Second)))
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Tarpit.MaxHops = 3
	cfg.Tarpit.HopWindowSec = 300
	cfg.Tarpit.EnableHopCheck = true
	cfg.Tarpit.MinDelaySec = 0
	cfg.Tarpit.MaxDelaySec = 0
	cfg.Tarpit.EscalationURL = "http://127.0.0.1:0/escalate"
	cfg.Tarpit.EscalationTimeoutSec = 0.1
	cfg.Redis.BlocklistTTLSec = 60
	cfg.Redis.TarpitFlagTTLSec = 60
	return cfg
}

func TestHandleTarpitSelfBlocksAfterMaxHops(t *testing.T) {
	cfg := testConfig()
	hops := &fixedHopCounter{}
	blocklist := &recordingBlocklist{}
	gen := markov.NewGenerator(emptySource{}, "seed")
	registry := metrics.NewRegistry()

	s := NewServer(cfg, hops, blocklist, nil, gen, registry, nil)

	for i := 0; i < cfg.Tarpit.MaxHops; i++ {
		req := httptest.NewRequest(http.MethodGet, "/tarpit/page1", nil)
		req.RemoteAddr = "198.51.100.9:1234"
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/tarpit/page1", nil)
	req.RemoteAddr = "198.51.100.9:1234"
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, 1, blocklist.writes)
}
