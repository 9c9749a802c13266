package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rhamenator/antiscrape/internal/apperr"
)

// BlockEntry is the JSON value stored at blocklist:ip:<ip>.
type BlockEntry struct {
	Reason        string `json:"reason"`
	TimestampUTC  string `json:"timestamp_utc"`
	UserAgent     string `json:"user_agent"`
}

// Blocklist is the contract the Tarpit Engine and Webhook Sink both write
// to, and the out-of-scope upstream enforcement point reads from.
type Blocklist interface {
	// Write sets the blocklist entry for ip with TTL ttl, refreshing (not
	// additively extending) any existing TTL. Returns true if this call
	// created the key (ip was not already blocked).
	Write(ctx context.Context, ip string, entry BlockEntry, ttl time.Duration) (created bool, err error)
	Exists(ctx context.Context, ip string) (bool, error)
	TTL(ctx context.Context, ip string) (time.Duration, error)
}

type RedisBlocklist struct {
	client *Client
}

func NewRedisBlocklist(client *Client) *RedisBlocklist {
	return &RedisBlocklist{client: client}
}

const blocklistKeyPrefix = "blocklist:ip:"

func blocklistKey(ip string) string { return blocklistKeyPrefix + ip }

// Write refreshes the TTL on every call via SET key value EX ttl rather than
// an additive EXPIRE, per the Open Question decision in DESIGN.md.
func (b *RedisBlocklist) Write(ctx context.Context, ip string, entry BlockEntry, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, apperr.Internal("blocklist.Write", err)
	}
	key := blocklistKey(ip)
	existed, err := b.client.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, apperr.StoreTransient("blocklist.Write", err)
	}
	if err := b.client.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return false, apperr.StoreTransient("blocklist.Write", err)
	}
	return existed == 0, nil
}

func (b *RedisBlocklist) Exists(ctx context.Context, ip string) (bool, error) {
	n, err := b.client.rdb.Exists(ctx, blocklistKey(ip)).Result()
	if err != nil {
		return false, apperr.StoreTransient("blocklist.Exists", err)
	}
	return n > 0, nil
}

func (b *RedisBlocklist) TTL(ctx context.Context, ip string) (time.Duration, error) {
	d, err := b.client.rdb.TTL(ctx, blocklistKey(ip)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, apperr.StoreTransient("blocklist.TTL", err)
	}
	return d, nil
}
