package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rhamenator/antiscrape/internal/apperr"
)

// FreqReading is the result of one Frequency Tracker access: the request
// count within the window (including the just-recorded hit) and the gap
// since the previous hit, or -1 if there was none.
type FreqReading struct {
	Count         int64
	TimeSinceLast float64 // seconds; -1 if no prior hit in window
}

// FrequencyTracker is the sliding-window per-IP timestamp set used by the
// Escalation Engine's req_freq_<W>s and time_since_last_sec features.
type FrequencyTracker interface {
	Record(ctx context.Context, ip string, window, margin time.Duration) (FreqReading, error)
}

type RedisFrequencyTracker struct {
	client *Client
}

func NewRedisFrequencyTracker(client *Client) *RedisFrequencyTracker {
	return &RedisFrequencyTracker{client: client}
}

const freqKeyPrefix = "freq:"

func freqKey(ip string) string { return freqKeyPrefix + ip }

// Record performs, in a single pipeline round trip: prune entries older
// than now-window, read the previous most-recent timestamp (before this
// hit), insert now, read the total count, and refresh the key's expiry to
// window+margin.
func (f *RedisFrequencyTracker) Record(ctx context.Context, ip string, window, margin time.Duration) (FreqReading, error) {
	now := time.Now()
	nowSec := float64(now.UnixNano()) / 1e9
	cutoff := float64(now.Add(-window).UnixNano()) / 1e9
	key := freqKey(ip)
	member := fmt.Sprintf("%d", now.UnixNano())

	pipe := f.client.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", cutoff))
	prevCmd := pipe.ZRevRangeWithScores(ctx, key, 0, 0)
	pipe.ZAdd(ctx, key, redis.Z{Score: nowSec, Member: member})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window+margin)
	if _, err := pipe.Exec(ctx); err != nil {
		return FreqReading{}, apperr.StoreTransient("freq.Record", err)
	}

	reading := FreqReading{Count: countCmd.Val(), TimeSinceLast: -1}
	if prev := prevCmd.Val(); len(prev) == 1 {
		reading.TimeSinceLast = nowSec - prev[0].Score
	}
	return reading, nil
}
