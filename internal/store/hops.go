package store

import (
	"context"
	"sync"
	"time"

	"github.com/rhamenator/antiscrape/internal/apperr"
)

// HopCounter is the sliding-window per-IP hit counter the Tarpit Engine
// self-blocks runaway clients against.
type HopCounter interface {
	// Hit increments the hop count for ip and refreshes its expiry to
	// window in a single atomic unit, returning the post-increment
	// count.
	Hit(ctx context.Context, ip string, window time.Duration) (count int64, err error)
}

type RedisHopCounter struct {
	client *Client
}

func NewRedisHopCounter(client *Client) *RedisHopCounter {
	return &RedisHopCounter{client: client}
}

const hopKeyPrefix = "tarpit:hops:"

func hopKey(ip string) string { return hopKeyPrefix + ip }

// Hit issues INCR and EXPIRE inside a single pipeline round trip so the
// expiry refresh can never race a concurrent first hit from the same IP —
// the redesign called for in DESIGN.md Open Question (b).
func (h *RedisHopCounter) Hit(ctx context.Context, ip string, window time.Duration) (int64, error) {
	pipe := h.client.rdb.Pipeline()
	incr := pipe.Incr(ctx, hopKey(ip))
	pipe.Expire(ctx, hopKey(ip), window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, apperr.StoreTransient("hops.Hit", err)
	}
	return incr.Val(), nil
}

// MemHopCounter is an in-process sliding-window fallback used when Redis
// is disabled or unreachable, so the hop check still degrades to
// something rather than being skipped outright in local development.
// Adapted from the sliding-window rate limiter pattern: a read-first
// RLock fast path, a write-locked slow path on first hit per IP, and a
// background ticker that reaps stale windows.
type MemHopCounter struct {
	mu      sync.Mutex
	windows map[string]*hopWindow
}

type hopWindow struct {
	count       int64
	windowStart time.Time
}

func NewMemHopCounter() *MemHopCounter {
	m := &MemHopCounter{windows: make(map[string]*hopWindow)}
	go m.cleanup()
	return m
}

func (m *MemHopCounter) Hit(_ context.Context, ip string, window time.Duration) (int64, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[ip]
	if !ok || now.Sub(w.windowStart) > window {
		w = &hopWindow{count: 0, windowStart: now}
		m.windows[ip] = w
	}
	w.count++
	return w.count, nil
}

func (m *MemHopCounter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-30 * time.Minute)
		m.mu.Lock()
		for ip, w := range m.windows {
			if w.windowStart.Before(cutoff) {
				delete(m.windows, ip)
			}
		}
		m.mu.Unlock()
	}
}
