package store

import (
	"context"
	"time"

	"github.com/rhamenator/antiscrape/internal/apperr"
)

// TarpitFlagger marks an IP as "recently tarpitted" in a short-TTL
// namespace, informational only and consumed by out-of-scope analytics.
type TarpitFlagger interface {
	Flag(ctx context.Context, ip string, ttl time.Duration) error
}

type RedisTarpitFlagger struct {
	client *Client
}

func NewRedisTarpitFlagger(client *Client) *RedisTarpitFlagger {
	return &RedisTarpitFlagger{client: client}
}

const tarpitFlagKeyPrefix = "tarpit_flag:"

func (t *RedisTarpitFlagger) Flag(ctx context.Context, ip string, ttl time.Duration) error {
	if err := t.client.rdb.Set(ctx, tarpitFlagKeyPrefix+ip, "1", ttl).Err(); err != nil {
		return apperr.StoreTransient("tarpitflag.Flag", err)
	}
	return nil
}
