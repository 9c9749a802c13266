package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rhamenator/antiscrape/internal/apperr"
)

// ReputationReading is the cached result of an IP-reputation lookup.
type ReputationReading struct {
	Malicious bool    `json:"malicious"`
	Score     float64 `json:"score"`
}

// ReputationCache spares a reputation-endpoint round trip for repeat
// offenders within the TTL window. A cache miss is not an error.
type ReputationCache interface {
	Get(ctx context.Context, ip string) (ReputationReading, bool, error)
	Set(ctx context.Context, ip string, reading ReputationReading, ttl time.Duration) error
}

type RedisReputationCache struct {
	client *Client
}

func NewRedisReputationCache(client *Client) *RedisReputationCache {
	return &RedisReputationCache{client: client}
}

const reputationKeyPrefix = "iprep:ip:"

func reputationKey(ip string) string { return reputationKeyPrefix + ip }

func (r *RedisReputationCache) Get(ctx context.Context, ip string) (ReputationReading, bool, error) {
	val, err := r.client.rdb.Get(ctx, reputationKey(ip)).Bytes()
	if err == redis.Nil {
		return ReputationReading{}, false, nil
	}
	if err != nil {
		return ReputationReading{}, false, apperr.StoreTransient("reputation.Get", err)
	}
	var reading ReputationReading
	if err := json.Unmarshal(val, &reading); err != nil {
		return ReputationReading{}, false, apperr.Internal("reputation.Get", err)
	}
	return reading, true, nil
}

func (r *RedisReputationCache) Set(ctx context.Context, ip string, reading ReputationReading, ttl time.Duration) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return apperr.Internal("reputation.Set", err)
	}
	if err := r.client.rdb.Set(ctx, reputationKey(ip), payload, ttl).Err(); err != nil {
		return apperr.StoreTransient("reputation.Set", err)
	}
	return nil
}
