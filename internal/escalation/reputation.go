package escalation

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rhamenator/antiscrape/internal/store"
)

// ReputationLookup consults the reputation cache first, falling back to
// an HTTP GET against the configured reputation endpoint on a miss.
// Failures of either leg do not abort the request — absence of a
// reading is treated as "not malicious."
type ReputationLookup struct {
	cache  store.ReputationCache
	url    string
	client *http.Client
	ttl    time.Duration
}

func NewReputationLookup(cache store.ReputationCache, url string, timeout, ttl time.Duration) *ReputationLookup {
	return &ReputationLookup{cache: cache, url: url, client: &http.Client{Timeout: timeout}, ttl: ttl}
}

// Lookup returns (malicious, score, found). found is false when no
// reading could be obtained from either the cache or the upstream.
func (r *ReputationLookup) Lookup(ctx context.Context, ip string) (bool, float64, bool) {
	if r == nil || r.url == "" {
		return false, 0, false
	}
	if r.cache != nil {
		if reading, ok, err := r.cache.Get(ctx, ip); err == nil && ok {
			return reading.Malicious, reading.Score, true
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url+"?ip="+ip, nil)
	if err != nil {
		return false, 0, false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false, 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, 0, false
	}

	var reading store.ReputationReading
	if err := json.NewDecoder(resp.Body).Decode(&reading); err != nil {
		return false, 0, false
	}
	if r.cache != nil {
		r.cache.Set(ctx, ip, reading, r.ttl)
	}
	return reading.Malicious, reading.Score, true
}
